package tenant_test

import (
	"context"
	"errors"
	"testing"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

type staticProvisioner struct {
	tenants []id.TenantID
	calls   int
}

func (p *staticProvisioner) ListTenants(_ context.Context) ([]id.TenantID, error) {
	p.calls++
	return p.tenants, nil
}

func TestResolve(t *testing.T) {
	t.Parallel()

	known := id.NewTenantID()
	unknown := id.NewTenantID()
	r := tenant.NewRouter(&staticProvisioner{tenants: []id.TenantID{known}})
	ctx := context.Background()

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"known tenant", known.String(), nil},
		{"unknown tenant", unknown.String(), engage.ErrTenantNotFound},
		{"malformed id", "not-a-tenant", engage.ErrTenantNotFound},
		{"wrong prefix", id.NewProfileID().String(), engage.ErrTenantNotFound},
		{"empty", "", engage.ErrTenantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			part, err := r.Resolve(ctx, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !part.IsZero() {
				t.Error("failed resolve must not hand out a partition")
			}
			if tt.wantErr == nil {
				if part.IsZero() {
					t.Fatal("expected a partition handle")
				}
				if part.TenantID().String() != tt.input {
					t.Errorf("partition tenant = %q, want %q", part.TenantID(), tt.input)
				}
				if part.Schema() != tenant.SchemaFor(known) {
					t.Errorf("schema = %q, want %q", part.Schema(), tenant.SchemaFor(known))
				}
			}
		})
	}
}

func TestResolveCachesTenantSet(t *testing.T) {
	t.Parallel()

	known := id.NewTenantID()
	p := &staticProvisioner{tenants: []id.TenantID{known}}
	r := tenant.NewRouter(p)
	ctx := context.Background()

	for range 5 {
		if _, err := r.Resolve(ctx, known.String()); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if p.calls != 1 {
		t.Errorf("provisioner called %d times, want 1", p.calls)
	}
}

func TestResolveIDNil(t *testing.T) {
	t.Parallel()

	r := tenant.NewRouter(&staticProvisioner{})
	if _, err := r.ResolveID(context.Background(), id.Nil); !errors.Is(err, engage.ErrTenantNotFound) {
		t.Fatalf("got %v, want ErrTenantNotFound", err)
	}
}
