package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func integrationDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("PARTNER_ENGINE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set PARTNER_ENGINE_POSTGRES_DSN to run postgres integration tests")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn, 2)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestHasDuplicateApplication(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		existing  string
		email     string
		candidate string
		want      bool
	}{
		{name: "contained name", existing: "Skyline Jets Ltd", candidate: "skyline jets", want: true},
		{name: "containing name", existing: "Skyline", candidate: "Skyline Jets Ltd", want: true},
		{name: "percent is literal", existing: "100 Aviation Group", candidate: "100% Aviation", want: false},
		{name: "underscore is literal", existing: "SkyXJets Ltd", candidate: "Sky_Jets", want: false},
		{name: "literal percent still matches itself", existing: "100% Aviation Group", candidate: "100% aviation", want: true},
		{name: "blank stored name never matches", existing: "  ", candidate: "Anything Air", want: false},
		{name: "same email", existing: "Other Co", email: "OPS@dup.example", candidate: "Unrelated", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.NewString()
			storedEmail := id + "@stored.example"
			if tt.email != "" {
				storedEmail = "ops@dup.example"
			}
			if _, err := db.Pool.Exec(ctx,
				`INSERT INTO partner_applications (id, company_name, contact_email) VALUES ($1, $2, $3)`,
				id, tt.existing, storedEmail,
			); err != nil {
				t.Fatalf("insert: %v", err)
			}
			t.Cleanup(func() {
				_, _ = db.Pool.Exec(ctx, `DELETE FROM partner_applications WHERE id = $1`, id)
			})

			email := tt.email
			if email == "" {
				email = uuid.NewString() + "@candidate.example"
			}
			got, err := db.HasDuplicateApplication(ctx, email, tt.candidate, "self")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected duplicate=%v for %q against %q, got %v", tt.want, tt.candidate, tt.existing, got)
			}
		})
	}
}
