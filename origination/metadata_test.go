package origination

import (
	"context"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleDocument = `{"name":"Warehouse 4","assetType":"real_estate","location":"Rotterdam","valueMinor":"25000000000"}`

func TestResolveEmbeddedDocument(t *testing.T) {
	resolver := NewMetadataResolver(0, 0)
	raw := embeddedDocumentPrefix + base64.StdEncoding.EncodeToString([]byte(sampleDocument))

	meta, err := resolver.Resolve(context.Background(), raw)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.Source != DocumentEmbedded {
		t.Fatalf("source = %v, want embedded", meta.Source)
	}
	if meta.Name != "Warehouse 4" || meta.Location != "Rotterdam" {
		t.Fatalf("unexpected fields: %+v", meta)
	}
	if meta.Value.Cmp(big.NewInt(25_000_000_000)) != 0 {
		t.Fatalf("value = %s", meta.Value)
	}
}

func TestResolveRemoteDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleDocument))
	}))
	defer server.Close()

	resolver := NewMetadataResolver(0, 0)
	meta, err := resolver.Resolve(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.Source != DocumentRemote {
		t.Fatalf("source = %v, want remote", meta.Source)
	}
	if meta.AssetType != "real_estate" {
		t.Fatalf("asset type = %q", meta.AssetType)
	}
}

func TestResolveRemoteErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	resolver := NewMetadataResolver(0, 0)
	if _, err := resolver.Resolve(context.Background(), server.URL); err == nil {
		t.Fatalf("expected error for 404 document")
	}
}

func TestResolveAbsentDocument(t *testing.T) {
	resolver := NewMetadataResolver(0, 0)
	meta, err := resolver.Resolve(context.Background(), "   ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.Source != DocumentAbsent {
		t.Fatalf("source = %v, want absent", meta.Source)
	}
}

func TestResolveUnrecognisedReference(t *testing.T) {
	resolver := NewMetadataResolver(0, 0)
	if _, err := resolver.Resolve(context.Background(), "ipfs://QmX"); err == nil {
		t.Fatalf("expected error for unrecognised reference")
	}
}

func TestResolveInvalidEmbeddedBase64(t *testing.T) {
	resolver := NewMetadataResolver(0, 0)
	if _, err := resolver.Resolve(context.Background(), embeddedDocumentPrefix+"!!not-base64!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
}

func TestResolveNegativeValueRejected(t *testing.T) {
	resolver := NewMetadataResolver(0, 0)
	raw := embeddedDocumentPrefix + base64.StdEncoding.EncodeToString([]byte(`{"name":"x","valueMinor":"-5"}`))
	if _, err := resolver.Resolve(context.Background(), raw); err == nil {
		t.Fatalf("expected error for negative value")
	}
}

func TestSynthesizeDisplay(t *testing.T) {
	meta := SynthesizeDisplay(big.NewInt(42))
	if meta.Name != "Tokenized asset #42" {
		t.Fatalf("name = %q", meta.Name)
	}
	meta = SynthesizeDisplay(nil)
	if meta.Name != "Tokenized asset #?" {
		t.Fatalf("nil token id name = %q", meta.Name)
	}
}
