package origination

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	embeddedDocumentPrefix = "data:application/json;base64,"
	maxDocumentBytes       = 1 << 20 // 1 MiB
)

// displayDocument is the JSON shape of a position's off-chain document.
// ValueMinor is in token minor units, encoded as a base-10 string.
type displayDocument struct {
	Name       string `json:"name"`
	AssetType  string `json:"assetType"`
	Location   string `json:"location"`
	ValueMinor string `json:"valueMinor"`
}

// MetadataResolver decodes a position's display document reference into a
// tagged variant: embedded (base64 data URI), remote (fetched over HTTP) or
// absent. Failures here degrade the display, never the financial flow.
type MetadataResolver struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewMetadataResolver builds a resolver with a bounded HTTP client and a
// fetch rate cap shared across positions.
func NewMetadataResolver(timeout time.Duration, fetchesPerSecond float64) *MetadataResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if fetchesPerSecond <= 0 {
		fetchesPerSecond = 4
	}
	return &MetadataResolver{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(fetchesPerSecond), 1),
	}
}

// Resolve classifies and decodes the raw document reference. An empty
// reference returns DocumentAbsent with no error.
func (r *MetadataResolver) Resolve(ctx context.Context, raw string) (DisplayMetadata, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return DisplayMetadata{Source: DocumentAbsent}, nil
	case strings.HasPrefix(trimmed, embeddedDocumentPrefix):
		return r.decodeEmbedded(trimmed)
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		return r.fetchRemote(ctx, trimmed)
	default:
		return DisplayMetadata{Source: DocumentAbsent}, fmt.Errorf("unrecognised document reference")
	}
}

func (r *MetadataResolver) decodeEmbedded(raw string) (DisplayMetadata, error) {
	payload := strings.TrimPrefix(raw, embeddedDocumentPrefix)
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return DisplayMetadata{Source: DocumentAbsent}, fmt.Errorf("decode embedded document: %w", err)
	}
	meta, err := parseDocument(decoded)
	if err != nil {
		return DisplayMetadata{Source: DocumentAbsent}, err
	}
	meta.Source = DocumentEmbedded
	return meta, nil
}

func (r *MetadataResolver) fetchRemote(ctx context.Context, url string) (DisplayMetadata, error) {
	if r == nil || r.client == nil {
		return DisplayMetadata{Source: DocumentAbsent}, fmt.Errorf("metadata resolver not initialised")
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return DisplayMetadata{Source: DocumentAbsent}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DisplayMetadata{Source: DocumentAbsent}, fmt.Errorf("build document request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return DisplayMetadata{Source: DocumentAbsent}, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DisplayMetadata{Source: DocumentAbsent}, fmt.Errorf("fetch document: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return DisplayMetadata{Source: DocumentAbsent}, fmt.Errorf("read document: %w", err)
	}
	meta, err := parseDocument(body)
	if err != nil {
		return DisplayMetadata{Source: DocumentAbsent}, err
	}
	meta.Source = DocumentRemote
	return meta, nil
}

func parseDocument(payload []byte) (DisplayMetadata, error) {
	var doc displayDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return DisplayMetadata{}, fmt.Errorf("parse document: %w", err)
	}
	meta := DisplayMetadata{
		Name:      strings.TrimSpace(doc.Name),
		AssetType: strings.TrimSpace(doc.AssetType),
		Location:  strings.TrimSpace(doc.Location),
	}
	if trimmed := strings.TrimSpace(doc.ValueMinor); trimmed != "" {
		value, ok := new(big.Int).SetString(trimmed, 10)
		if !ok || value.Sign() < 0 {
			return DisplayMetadata{}, fmt.Errorf("document value must be a non-negative integer")
		}
		meta.Value = value
	}
	return meta, nil
}

// SynthesizeDisplay builds fallback display text from ledger-sourced fields
// when no document can be resolved.
func SynthesizeDisplay(tokenID *big.Int) DisplayMetadata {
	id := "?"
	if tokenID != nil {
		id = tokenID.String()
	}
	return DisplayMetadata{
		Name:      "Tokenized asset #" + id,
		AssetType: "unknown",
		Source:    DocumentAbsent,
	}
}
