package schema

import (
	"fmt"
	"strings"
)

// Every script below is safe to re-run: tables and columns use IF NOT EXISTS,
// policies and triggers are created inside guarded DO blocks, functions use
// CREATE OR REPLACE.

const setUpdatedAtFunction = `CREATE OR REPLACE FUNCTION public.set_updated_at()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  NEW.updated_at := now();
  RETURN NEW;
END;
$$;`

// policy returns a guarded CREATE POLICY on schema.table.
func policy(schema, table, name, def string) string {
	return fmt.Sprintf(`DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_policies
    WHERE schemaname = '%[1]s' AND tablename = '%[2]s' AND policyname = '%[3]s'
  ) THEN
    CREATE POLICY "%[3]s" ON %[1]s.%[2]s %[4]s;
  END IF;
END $$;`, schema, table, name, def)
}

// trigger returns a guarded row-level CREATE TRIGGER on public.table.
// timing is e.g. "BEFORE UPDATE", action the function call to execute.
func trigger(table, name, timing, action string) string {
	return fmt.Sprintf(`DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_trigger
    WHERE tgname = '%[2]s' AND tgrelid = 'public.%[1]s'::regclass
  ) THEN
    CREATE TRIGGER %[2]s %[3]s ON public.%[1]s
      FOR EACH ROW EXECUTE FUNCTION %[4]s;
  END IF;
END $$;`, table, name, timing, action)
}

// hasColumn is a predicate usable inside plpgsql conditions.
func hasColumn(table, column string) string {
	return fmt.Sprintf(`EXISTS (
    SELECT 1 FROM information_schema.columns
    WHERE table_schema = 'public' AND table_name = '%s' AND column_name = '%s'
  )`, table, column)
}

func script(parts ...string) string {
	return strings.Join(parts, "\n\n")
}

var profilesScript = Script{
	Name:    "profiles",
	Table:   "profiles",
	Success: "Profile table setup successful",
	SQL: script(
		`CREATE TABLE IF NOT EXISTS public.profiles (
  id UUID PRIMARY KEY REFERENCES auth.users(id) ON DELETE CASCADE,
  full_name TEXT,
  email TEXT,
  phone TEXT,
  bio TEXT,
  avatar_url TEXT,
  address TEXT,
  city TEXT,
  state TEXT,
  postal_code TEXT,
  country TEXT,
  website TEXT,
  facebook_url TEXT,
  instagram_url TEXT,
  twitter_url TEXT,
  privacy_level TEXT NOT NULL DEFAULT 'public'
    CHECK (privacy_level IN ('public', 'private', 'friends_only')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
		`ALTER TABLE public.profiles ENABLE ROW LEVEL SECURITY;`,
		policy("public", "profiles", "Public profiles are viewable by everyone",
			`FOR SELECT USING (privacy_level = 'public' OR auth.uid() = id)`),
		policy("public", "profiles", "Users can insert their own profile",
			`FOR INSERT WITH CHECK (auth.uid() = id)`),
		policy("public", "profiles", "Users can update their own profile",
			`FOR UPDATE USING (auth.uid() = id)`),
		setUpdatedAtFunction,
		trigger("profiles", "profiles_set_updated_at", "BEFORE UPDATE", "public.set_updated_at()"),
		`INSERT INTO storage.buckets (id, name, public)
VALUES ('avatars', 'avatars', true)
ON CONFLICT (id) DO NOTHING;`,
		policy("storage", "objects", "Avatar images are publicly accessible",
			`FOR SELECT USING (bucket_id = 'avatars')`),
		policy("storage", "objects", "Users can upload their own avatar",
			`FOR INSERT WITH CHECK (bucket_id = 'avatars' AND auth.uid()::text = (storage.foldername(name))[1])`),
		policy("storage", "objects", "Users can update their own avatar",
			`FOR UPDATE USING (bucket_id = 'avatars' AND auth.uid()::text = (storage.foldername(name))[1])`),
	),
}

var shippingAddressesScript = Script{
	Name:    "shipping_addresses",
	Table:   "shipping_addresses",
	Success: "Shipping addresses table setup successful",
	SQL: script(
		`CREATE TABLE IF NOT EXISTS public.shipping_addresses (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  user_id UUID NOT NULL REFERENCES auth.users(id) ON DELETE CASCADE,
  label TEXT,
  full_name TEXT NOT NULL,
  phone TEXT,
  address_line1 TEXT NOT NULL,
  address_line2 TEXT,
  city TEXT NOT NULL,
  state TEXT,
  postal_code TEXT NOT NULL,
  country TEXT NOT NULL DEFAULT 'US',
  delivery_instructions TEXT,
  is_default BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
		`CREATE INDEX IF NOT EXISTS idx_shipping_addresses_user_id ON public.shipping_addresses (user_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_shipping_addresses_default
  ON public.shipping_addresses (user_id) WHERE is_default;`,
		`ALTER TABLE public.shipping_addresses ENABLE ROW LEVEL SECURITY;`,
		policy("public", "shipping_addresses", "Users can manage their own addresses",
			`FOR ALL USING (auth.uid() = user_id) WITH CHECK (auth.uid() = user_id)`),
		// The first address becomes the default; choosing a new default
		// clears the old one.
		`CREATE OR REPLACE FUNCTION public.shipping_addresses_single_default()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  -- Rows touched by this trigger's own UPDATE pass through unchanged.
  IF pg_trigger_depth() > 1 THEN
    RETURN NEW;
  END IF;
  IF NOT EXISTS (
    SELECT 1 FROM public.shipping_addresses
    WHERE user_id = NEW.user_id AND id <> NEW.id AND is_default
  ) THEN
    NEW.is_default := true;
  ELSIF NEW.is_default THEN
    UPDATE public.shipping_addresses
    SET is_default = false
    WHERE user_id = NEW.user_id AND id <> NEW.id AND is_default;
  END IF;
  RETURN NEW;
END;
$$;`,
		// Deleting the default promotes the most recent remaining address.
		`CREATE OR REPLACE FUNCTION public.shipping_addresses_promote_default()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF OLD.is_default THEN
    UPDATE public.shipping_addresses
    SET is_default = true
    WHERE id = (
      SELECT id FROM public.shipping_addresses
      WHERE user_id = OLD.user_id
      ORDER BY created_at DESC
      LIMIT 1
    );
  END IF;
  RETURN OLD;
END;
$$;`,
		trigger("shipping_addresses", "shipping_addresses_single_default",
			"BEFORE INSERT OR UPDATE OF is_default", "public.shipping_addresses_single_default()"),
		trigger("shipping_addresses", "shipping_addresses_promote_default",
			"AFTER DELETE", "public.shipping_addresses_promote_default()"),
		setUpdatedAtFunction,
		trigger("shipping_addresses", "shipping_addresses_set_updated_at", "BEFORE UPDATE", "public.set_updated_at()"),
	),
}

var deliveriesScript = Script{
	Name:    "deliveries",
	Table:   "deliveries",
	Success: "Deliveries table setup successful",
	SQL: script(
		`CREATE TABLE IF NOT EXISTS public.deliveries (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  order_id UUID NOT NULL UNIQUE REFERENCES public.orders(id) ON DELETE CASCADE,
  status TEXT NOT NULL DEFAULT 'pending'
    CHECK (status IN ('pending', 'scheduled', 'in_transit', 'delivered', 'failed', 'cancelled')),
  carrier TEXT,
  tracking_number TEXT,
  scheduled_date DATE,
  estimated_delivery TIMESTAMPTZ,
  delivered_at TIMESTAMPTZ,
  notes TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_status ON public.deliveries (status);`,
		`ALTER TABLE public.deliveries ENABLE ROW LEVEL SECURITY;`,
		policy("public", "deliveries", "Customers can view deliveries for their orders",
			`FOR SELECT USING (EXISTS (
      SELECT 1 FROM public.orders o
      WHERE o.id = deliveries.order_id AND o.user_id = auth.uid()
    ))`),
		setUpdatedAtFunction,
		trigger("deliveries", "deliveries_set_updated_at", "BEFORE UPDATE", "public.set_updated_at()"),
	),
}

var farmCustomersScript = Script{
	Name:    "farm_customers",
	Table:   "farm_customers",
	Success: "Farm customers table setup successful",
	SQL: script(
		`CREATE TABLE IF NOT EXISTS public.farm_customers (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  farm_id UUID NOT NULL REFERENCES auth.users(id) ON DELETE CASCADE,
  customer_id UUID NOT NULL REFERENCES auth.users(id) ON DELETE CASCADE,
  first_order_at TIMESTAMPTZ,
  last_order_at TIMESTAMPTZ,
  total_orders INTEGER NOT NULL DEFAULT 0,
  total_spent NUMERIC(12, 2) NOT NULL DEFAULT 0,
  notes TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT farm_customers_farm_customer_key UNIQUE (farm_id, customer_id)
);`,
		`CREATE INDEX IF NOT EXISTS idx_farm_customers_customer_id ON public.farm_customers (customer_id);`,
		`ALTER TABLE public.farm_customers ENABLE ROW LEVEL SECURITY;`,
		policy("public", "farm_customers", "Farmers can view their customers",
			`FOR SELECT USING (auth.uid() = farm_id)`),
		policy("public", "farm_customers", "Customers can view their farm relationships",
			`FOR SELECT USING (auth.uid() = customer_id)`),
	),
}

var farmSettingsScript = Script{
	Name:    "farm_settings",
	Table:   "farm_settings",
	Success: "Farm settings table setup successful",
	SQL: script(
		`CREATE TABLE IF NOT EXISTS public.farm_settings (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  farmer_id UUID NOT NULL UNIQUE REFERENCES auth.users(id) ON DELETE CASCADE,
  delivery_radius_km NUMERIC(6, 2) NOT NULL DEFAULT 25,
  minimum_order_amount NUMERIC(10, 2) NOT NULL DEFAULT 0,
  delivery_fee NUMERIC(10, 2) NOT NULL DEFAULT 5,
  free_delivery_threshold NUMERIC(10, 2) NOT NULL DEFAULT 50,
  accepts_pickup BOOLEAN NOT NULL DEFAULT true,
  accepts_delivery BOOLEAN NOT NULL DEFAULT true,
  processing_days INTEGER NOT NULL DEFAULT 2 CHECK (processing_days >= 0),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
		`ALTER TABLE public.farm_settings ENABLE ROW LEVEL SECURITY;`,
		policy("public", "farm_settings", "Farm settings are viewable by everyone",
			`FOR SELECT USING (true)`),
		policy("public", "farm_settings", "Farmers can manage their own settings",
			`FOR ALL USING (auth.uid() = farmer_id) WITH CHECK (auth.uid() = farmer_id)`),
		setUpdatedAtFunction,
		trigger("farm_settings", "farm_settings_set_updated_at", "BEFORE UPDATE", "public.set_updated_at()"),
	),
}

var additionalImagesScript = Script{
	Name:    "products_additional_images",
	Table:   "products",
	Column:  "additional_images",
	Success: "Additional images column added to products",
	SQL:     `ALTER TABLE public.products ADD COLUMN IF NOT EXISTS additional_images TEXT[] DEFAULT '{}';`,
}

var isAvailableScript = Script{
	Name:    "products_is_available",
	Table:   "products",
	Column:  "is_available",
	Success: "Availability column added to products",
	SQL: script(
		`ALTER TABLE public.products ADD COLUMN IF NOT EXISTS is_available BOOLEAN DEFAULT true;`,
		`CREATE INDEX IF NOT EXISTS idx_products_is_available ON public.products (is_available);`,
	),
}

var renameStockScript = Script{
	Name:    "products_quantity",
	Table:   "products",
	Column:  "quantity",
	Success: "Renamed products.stock to quantity",
	SQL: script(
		fmt.Sprintf(`DO $$
BEGIN
  IF %s AND NOT %s THEN
    ALTER TABLE public.products RENAME COLUMN stock TO quantity;
  END IF;
  IF %s AND NOT %s THEN
    ALTER TABLE public.products RENAME COLUMN min_stock TO min_quantity;
  END IF;
END $$;`,
			hasColumn("products", "stock"), hasColumn("products", "quantity"),
			hasColumn("products", "min_stock"), hasColumn("products", "min_quantity")),
		// Tables that had stock but never min_stock.
		`ALTER TABLE public.products ADD COLUMN IF NOT EXISTS min_quantity INTEGER DEFAULT 5;`,
	),
}

var addQuantityScript = Script{
	Name:    "products_quantity",
	Table:   "products",
	Column:  "quantity",
	Success: "Quantity columns added to products",
	SQL: script(
		`ALTER TABLE public.products ADD COLUMN IF NOT EXISTS quantity INTEGER DEFAULT 0;`,
		`ALTER TABLE public.products ADD COLUMN IF NOT EXISTS min_quantity INTEGER DEFAULT 5;`,
	),
}
