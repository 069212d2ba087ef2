package sanitize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/marcus/till/internal/models"
	"github.com/shopspring/decimal"
)

func TestProductEmbeddedImage(t *testing.T) {
	p := &models.Product{
		Name:  "Coffee",
		Price: decimal.RequireFromString("3.50"),
		Image: "data:image/png;base64,AAAA",
	}

	if got := Product(p, ForOutbox); got.Image != "" {
		t.Errorf("outbox image = %q, want stripped", got.Image)
	}
	if got := Product(p, ForExport); got.Image != p.Image {
		t.Errorf("export image = %q, want kept", got.Image)
	}

	p.Image = "https://cdn.example.com/coffee.png"
	if got := Product(p, ForOutbox); got.Image != p.Image {
		t.Errorf("remote image URL dropped: %q", got.Image)
	}
}

func TestProductDeepCopy(t *testing.T) {
	stock := 4
	p := &models.Product{
		Name:  "Shirt",
		Stock: &stock,
		Variations: []models.Variation{
			{Name: "M", Stock: &stock},
		},
		WholesalePrices: []models.WholesalePrice{{Min: 10, Max: 50, Price: decimal.NewFromInt(8)}},
	}
	out := Product(p, ForOutbox)

	*out.Stock = 99
	*out.Variations[0].Stock = 99
	out.WholesalePrices[0].Min = 1
	if stock != 4 || p.WholesalePrices[0].Min != 10 {
		t.Errorf("sanitized copy shares memory with the original")
	}
}

func TestUserPIN(t *testing.T) {
	u := &models.User{Name: "Ana", PIN: "1234", Role: models.RoleCashier}
	if got := User(u, ForOutbox); got.PIN != "" {
		t.Errorf("PIN leaked to outbox")
	}
	if got := User(u, ForExport); got.PIN != "1234" {
		t.Errorf("export PIN = %q", got.PIN)
	}
}

func TestContactDropsBalance(t *testing.T) {
	c := &models.Contact{Name: "Budi", Type: models.ContactCustomer, Balance: decimal.NewFromInt(70)}
	data, err := json.Marshal(Contact(c, ForOutbox))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "alance") {
		t.Errorf("balance serialized: %s", data)
	}
}

func TestTransactionCutsProductReferences(t *testing.T) {
	prod := &models.Product{Name: "Tea", Image: "data:image/png;base64,AAAA"}
	userID := int64(1)
	tx := &models.Transaction{
		Total:  decimal.NewFromInt(20),
		UserID: &userID,
		Date:   "2024-05-01T10:00:00.000Z",
		Items: []models.LineItem{
			{ProductID: 7, Name: "Tea", Quantity: 2, BasePrice: decimal.NewFromInt(10), Product: prod},
		},
		Fees: []models.AppliedFee{{FeeID: 1, Name: "VAT", Amount: decimal.NewFromInt(2)}},
	}

	out := Transaction(tx, ForOutbox)
	if out.Items[0].Product != nil {
		t.Fatal("line item still references its product")
	}
	if out.Items[0].ProductID != 7 || out.Items[0].Quantity != 2 {
		t.Errorf("line item = %+v", out.Items[0])
	}
	*out.UserID = 2
	out.Fees[0].Name = "changed"
	if userID != 1 || tx.Fees[0].Name != "VAT" {
		t.Errorf("sanitized copy shares memory with the original")
	}

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "base64") {
		t.Errorf("product image reached the payload: %s", data)
	}
}

func TestNilInputs(t *testing.T) {
	if got := Product(nil, ForOutbox); got.Name != "" {
		t.Errorf("Product(nil) = %+v", got)
	}
	if got := Transaction(nil, ForOutbox); got.Items != nil {
		t.Errorf("Transaction(nil) = %+v", got)
	}
	if got := LineItems(nil); len(got) != 0 {
		t.Errorf("LineItems(nil) = %+v", got)
	}
	if got := Record(nil, ForOutbox); got != (models.Meta{}) {
		t.Errorf("Record(nil) = %+v", got)
	}
}

func TestRecordDispatch(t *testing.T) {
	tests := []struct {
		name string
		rec  models.Record
		want string
	}{
		{"product", &models.Product{Name: "p", Image: "data:x"}, "models.Product"},
		{"user", &models.User{Name: "u", PIN: "1"}, "models.User"},
		{"setting", &models.Setting{Key: "storeName", Value: "Shop"}, "models.Setting"},
		{"pending", &models.PendingTransaction{Timestamp: "2024-01-01T00:00:00.000Z"}, "models.PendingTransaction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Record(tt.rec, ForOutbox)
			switch v := out.(type) {
			case models.Product:
				if v.Image != "" {
					t.Errorf("image kept")
				}
			case models.User:
				if v.PIN != "" {
					t.Errorf("PIN kept")
				}
			case models.Setting, models.PendingTransaction:
			default:
				t.Errorf("Record returned %T, want %s", out, tt.want)
			}
		})
	}
}

func TestRestoreLocalOnlyFields(t *testing.T) {
	tests := []struct {
		name       string
		collection models.Collection
		remote     string
		local      string
		field      string
		want       any
	}{
		{"pin carried over", models.Users, `{"name":"b"}`, `{"name":"a","pin":"1234"}`, "pin", "1234"},
		{"embedded image carried over", models.Products, `{"name":"b"}`, `{"image":"data:image/png;base64,AAAA"}`, "image", "data:image/png;base64,AAAA"},
		{"remote image URL wins", models.Products, `{"image":"https://cdn.example.com/b.png"}`, `{"image":"data:image/png;base64,AAAA"}`, "image", "https://cdn.example.com/b.png"},
		{"local image URL not resurrected", models.Products, `{"name":"b"}`, `{"image":"https://cdn.example.com/a.png"}`, "image", nil},
		{"other collections untouched", models.Contacts, `{"name":"b"}`, `{"name":"a","pin":"1234"}`, "pin", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Restore(tt.collection, []byte(tt.remote), []byte(tt.local))
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			var m map[string]any
			if err := json.Unmarshal(out, &m); err != nil {
				t.Fatalf("output is not an object: %v", err)
			}
			if m[tt.field] != tt.want {
				t.Errorf("%s = %v, want %v", tt.field, m[tt.field], tt.want)
			}
			if m["name"] != "b" && tt.collection != models.Products {
				t.Errorf("remote fields lost: %v", m)
			}
		})
	}
}

func TestRestoreWithoutLocal(t *testing.T) {
	remote := []byte(`{"name":"b"}`)
	out, err := Restore(models.Users, remote, nil)
	if err != nil || string(out) != string(remote) {
		t.Errorf("Restore(nil local) = %s, %v", out, err)
	}
	if _, err := Restore(models.Users, remote, []byte("not json")); err == nil {
		t.Error("expected error for corrupt local record")
	}
}
