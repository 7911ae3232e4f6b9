package schema

import (
	"context"
	"strings"
)

// Migration describes one ensure operation.
type Migration struct {
	Name        string
	Description string

	// Scripts is the DDL the migration may submit, shown to operators who
	// have to apply it by hand.
	Scripts []Script

	// Check reports whether the migration is already applied. It never
	// mutates the schema.
	Check func(b *Bootstrapper, ctx context.Context) bool

	// Apply ensures the object exists.
	Apply func(b *Bootstrapper, ctx context.Context) Result
}

// SQL returns the migration's scripts joined for manual application.
func (m Migration) SQL() string {
	parts := make([]string, 0, len(m.Scripts))
	for _, s := range m.Scripts {
		parts = append(parts, "-- "+s.Success+"\n"+s.SQL)
	}
	return strings.Join(parts, "\n\n")
}

func tableCheck(table string) func(*Bootstrapper, context.Context) bool {
	return func(b *Bootstrapper, ctx context.Context) bool {
		return b.checker.TableExists(ctx, table)
	}
}

func columnCheck(table, column string) func(*Bootstrapper, context.Context) bool {
	return func(b *Bootstrapper, ctx context.Context) bool {
		return b.checker.ColumnExists(ctx, table, column)
	}
}

// Migrations is the ordered list of schema migrations. Order matters only
// where DDL references another entity (deliveries needs orders, which the
// storefront itself owns).
var Migrations = []Migration{
	{
		Name:        "profiles",
		Description: "consumer profiles table, policies and avatars bucket row",
		Scripts:     []Script{profilesScript},
		Check:       tableCheck("profiles"),
		Apply:       (*Bootstrapper).EnsureProfilesTable,
	},
	{
		Name:        "shipping_addresses",
		Description: "shipping addresses with single-default triggers",
		Scripts:     []Script{shippingAddressesScript},
		Check:       tableCheck("shipping_addresses"),
		Apply:       (*Bootstrapper).EnsureShippingAddressesTable,
	},
	{
		Name:        "farm_settings",
		Description: "per-farmer delivery and ordering settings",
		Scripts:     []Script{farmSettingsScript},
		Check:       tableCheck("farm_settings"),
		Apply:       (*Bootstrapper).EnsureFarmSettingsTable,
	},
	{
		Name:        "farm_customers",
		Description: "farm/customer relationships",
		Scripts:     []Script{farmCustomersScript},
		Check:       tableCheck("farm_customers"),
		Apply:       (*Bootstrapper).EnsureFarmCustomersTable,
	},
	{
		Name:        "deliveries",
		Description: "one delivery record per order",
		Scripts:     []Script{deliveriesScript},
		Check:       tableCheck("deliveries"),
		Apply:       (*Bootstrapper).EnsureDeliveriesTable,
	},
	{
		Name:        "products_additional_images",
		Description: "products.additional_images text array",
		Scripts:     []Script{additionalImagesScript},
		Check:       columnCheck("products", "additional_images"),
		Apply:       (*Bootstrapper).EnsureAdditionalImagesColumn,
	},
	{
		Name:        "products_is_available",
		Description: "products.is_available flag",
		Scripts:     []Script{isAvailableScript},
		Check:       columnCheck("products", "is_available"),
		Apply:       (*Bootstrapper).EnsureIsAvailableColumn,
	},
	{
		Name:        "products_quantity",
		Description: "products.quantity/min_quantity, renamed from legacy stock columns when present",
		Scripts:     []Script{renameStockScript, addQuantityScript},
		Check:       columnCheck("products", "quantity"),
		Apply:       (*Bootstrapper).EnsureProductsQuantityField,
	},
	{
		Name:        "avatars_bucket",
		Description: "avatars bucket in S3-compatible storage",
		Check: func(b *Bootstrapper, ctx context.Context) bool {
			return b.buckets == nil || b.buckets.BucketExists(ctx)
		},
		Apply: (*Bootstrapper).EnsureAvatarsBucket,
	},
}

// Lookup finds a migration by name.
func Lookup(name string) (Migration, bool) {
	for _, m := range Migrations {
		if m.Name == name {
			return m, true
		}
	}
	return Migration{}, false
}

// Names returns all migration names in order.
func Names() []string {
	names := make([]string, len(Migrations))
	for i, m := range Migrations {
		names[i] = m.Name
	}
	return names
}
