package schema

import (
	"context"
	"fmt"

	"github.com/farmstand/farmstand/internal/backend"
	"github.com/rs/zerolog"
)

// BucketEnsurer creates an object-storage bucket if it is missing.
// storage.S3Store satisfies it.
type BucketEnsurer interface {
	BucketExists(ctx context.Context) bool
	EnsureBucket(ctx context.Context) (created bool, err error)
	Bucket() string
}

// Bootstrapper owns the per-entity ensure operations. Each one is a
// pre-flight existence check followed, if needed, by its DDL script.
type Bootstrapper struct {
	checker  *Checker
	executor *Executor
	buckets  BucketEnsurer
	log      zerolog.Logger
}

// NewBootstrapper wires a checker and executor around client. buckets may be
// nil when no S3-compatible storage is configured.
func NewBootstrapper(client backend.Client, buckets BucketEnsurer, log zerolog.Logger) *Bootstrapper {
	checker := NewChecker(client, log)
	return &Bootstrapper{
		checker:  checker,
		executor: NewExecutor(client, checker, log),
		buckets:  buckets,
		log:      log,
	}
}

// Checker exposes the existence checker.
func (b *Bootstrapper) Checker() *Checker { return b.checker }

func (b *Bootstrapper) ensureTable(ctx context.Context, s Script) Result {
	if b.checker.TableExists(ctx, s.Table) {
		return Result{Success: true, Message: fmt.Sprintf("%s already exists", s.Object())}
	}
	return b.executor.Apply(ctx, s)
}

func (b *Bootstrapper) ensureColumn(ctx context.Context, s Script) Result {
	if b.checker.ColumnExists(ctx, s.Table, s.Column) {
		return Result{Success: true, Message: fmt.Sprintf("%s already exists", s.Object())}
	}
	return b.executor.Apply(ctx, s)
}

// EnsureProfilesTable creates profiles with its policies, updated_at trigger
// and the public avatars bucket row.
func (b *Bootstrapper) EnsureProfilesTable(ctx context.Context) Result {
	return b.ensureTable(ctx, profilesScript)
}

// EnsureShippingAddressesTable creates shipping_addresses and the triggers
// that keep exactly one default address per user.
func (b *Bootstrapper) EnsureShippingAddressesTable(ctx context.Context) Result {
	return b.ensureTable(ctx, shippingAddressesScript)
}

// EnsureDeliveriesTable creates deliveries. It depends on orders existing.
func (b *Bootstrapper) EnsureDeliveriesTable(ctx context.Context) Result {
	return b.ensureTable(ctx, deliveriesScript)
}

func (b *Bootstrapper) EnsureFarmCustomersTable(ctx context.Context) Result {
	return b.ensureTable(ctx, farmCustomersScript)
}

func (b *Bootstrapper) EnsureFarmSettingsTable(ctx context.Context) Result {
	return b.ensureTable(ctx, farmSettingsScript)
}

func (b *Bootstrapper) EnsureAdditionalImagesColumn(ctx context.Context) Result {
	return b.ensureColumn(ctx, additionalImagesScript)
}

func (b *Bootstrapper) EnsureIsAvailableColumn(ctx context.Context) Result {
	return b.ensureColumn(ctx, isAvailableScript)
}

// EnsureProductsQuantityField makes sure products has quantity/min_quantity.
// Tables still carrying the legacy stock/min_stock columns get them renamed
// so existing inventory is kept; otherwise fresh columns are added.
func (b *Bootstrapper) EnsureProductsQuantityField(ctx context.Context) Result {
	if b.checker.ColumnExists(ctx, "products", "quantity") {
		return Result{Success: true, Message: "column products.quantity already exists"}
	}
	if b.checker.ColumnExists(ctx, "products", "stock") {
		return b.executor.Apply(ctx, renameStockScript)
	}
	return b.executor.Apply(ctx, addQuantityScript)
}

// EnsureAvatarsBucket creates the avatar bucket through the S3-compatible
// storage API. Without storage configured the bucket row inserted by the
// profiles script is all there is, and this reports success.
func (b *Bootstrapper) EnsureAvatarsBucket(ctx context.Context) Result {
	if b.buckets == nil {
		return Result{Success: true, Message: "object storage not configured, skipping bucket check"}
	}
	created, err := b.buckets.EnsureBucket(ctx)
	if err != nil {
		b.log.Error().Err(err).Str("bucket", b.buckets.Bucket()).Msg("bucket setup failed")
		return Result{Success: false, Message: fmt.Sprintf("bucket %s: %v", b.buckets.Bucket(), err)}
	}
	if !created {
		return Result{Success: true, Message: fmt.Sprintf("bucket %s already exists", b.buckets.Bucket())}
	}
	return Result{Success: true, Message: fmt.Sprintf("bucket %s created", b.buckets.Bucket())}
}
