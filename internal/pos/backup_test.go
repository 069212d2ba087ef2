package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
)

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestService(t)
	ctx := context.Background()

	tea := addProduct(t, src, &models.Product{Name: "Tea", Price: dec("5"), Stock: intp(3), Image: "data:image/png;base64,AAAA"})
	c := addContact(t, src, "Budi", "0812", models.ContactCustomer)
	addLedger(t, src, c.LocalKey, models.Debit, "100")
	addLedger(t, src, c.LocalKey, models.Credit, "30")
	if err := src.SaveUser(ctx, nil, &models.User{Name: "Owner", PIN: "1234", Role: models.RoleOwner}); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	if err := src.PutSetting(ctx, "storeName", "Toko Maju"); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}

	var buf bytes.Buffer
	if err := src.Export(ctx, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	for _, key := range []string{"products", "contacts", "ledgers", "users", "settings", "exportDate"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("export missing %q", key)
		}
	}
	if !strings.Contains(buf.String(), "data:image/png") || !strings.Contains(buf.String(), `"pin": "1234"`) {
		t.Error("export dropped device-only fields a restore needs")
	}
	if _, err := src.Setting(ctx, LastExportKey); err != nil {
		t.Errorf("%s not recorded: %v", LastExportKey, err)
	}

	dst := newTestService(t)
	addProduct(t, dst, &models.Product{Name: "Stale", Price: dec("1")})
	summary, err := dst.Import(ctx, &buf)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if summary[models.Products] != 1 || summary[models.Ledgers] != 2 {
		t.Errorf("summary = %v", summary)
	}

	products, _ := dst.Products(ctx)
	if len(products) != 1 || products[0].Name != "Tea" || products[0].LocalKey != tea.LocalKey {
		t.Errorf("products = %+v", products)
	}
	got, err := dst.Contact(ctx, c.LocalKey)
	if err != nil || !got.Balance.Equal(dec("70")) {
		t.Errorf("restored contact = %+v, %v", got, err)
	}
	st, err := dst.Setting(ctx, "storeName")
	if err != nil || st.Value != "Toko Maju" {
		t.Errorf("setting = %+v, %v", st, err)
	}
	if n, _ := dst.Store().CountPending(ctx); n != 0 {
		t.Errorf("import left %d outbox entries", n)
	}
}

func TestImportKeepsAbsentCollections(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	addContact(t, s, "Budi", "", models.ContactCustomer)
	addProduct(t, s, &models.Product{Name: "Old", Price: dec("1")})

	backup := `{"products":[{"id":5,"name":"New","price":"2","stock":null,"wholesalePrices":[],"variations":[]}],"exportDate":"2024-03-01T00:00:00.000Z"}`
	if _, err := s.Import(ctx, strings.NewReader(backup)); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	contacts, _ := s.Contacts(ctx, "")
	if len(contacts) != 1 {
		t.Errorf("contacts = %d, want untouched", len(contacts))
	}
	p, err := s.Product(ctx, 5)
	if err != nil || p.Name != "New" {
		t.Errorf("product 5 = %+v, %v", p, err)
	}

	// the contact's CREATE still waits for sync; the replaced products' do not
	entries, err := s.Store().PendingEntries(ctx)
	if err != nil {
		t.Fatalf("PendingEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Collection() != models.Contacts || entries[0].LocalKey != contacts[0].LocalKey {
		t.Errorf("outbox after import = %+v, want only the contact's entry", entries)
	}
}

func TestImportRejectsBadFiles(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	addProduct(t, s, &models.Product{Name: "Keep", Price: dec("1")})

	for _, in := range []string{`nope`, `{"exportDate":"x"}`, `{"products":{}}`, `{"products":[{"price":"abc"}]}`} {
		_, err := s.Import(ctx, strings.NewReader(in))
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Import(%s) err = %v, want ValidationError", in, err)
		}
	}
	products, _ := s.Products(ctx)
	if len(products) != 1 {
		t.Errorf("failed import changed the store: %d products", len(products))
	}
}

func TestSettings(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Setting(ctx, "theme"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("missing setting err = %v", err)
	}
	if err := s.PutSetting(ctx, "theme", "dark"); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}
	if err := s.PutSetting(ctx, "theme", "light"); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}
	var all []models.Setting
	if err := s.Store().GetAll(ctx, models.Settings, &all); err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 1 || all[0].Value != "light" {
		t.Errorf("settings = %+v", all)
	}
	if got := actions(t, s); len(got) != 0 {
		t.Errorf("settings reached the outbox: %v", got)
	}
}

func TestClearAll(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	addProduct(t, s, &models.Product{Name: "Tea", Price: dec("5")})
	addContact(t, s, "Budi", "", models.ContactCustomer)

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	products, _ := s.Products(ctx)
	contacts, _ := s.Contacts(ctx, "")
	if len(products)+len(contacts) != 0 {
		t.Errorf("records survived: %d products, %d contacts", len(products), len(contacts))
	}
	if n, _ := s.Store().CountPending(ctx); n != 0 {
		t.Errorf("outbox = %d", n)
	}
}
