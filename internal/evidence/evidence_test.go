package evidence

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/veritaslabs/oraclebot/internal/cache/memory"
	"github.com/veritaslabs/oraclebot/internal/domain"
)

// memBlob is an in-memory object store satisfying both blob interfaces.
type memBlob struct {
	objects map[string][]byte
	puts    int
	putErr  error
}

func newMemBlob() *memBlob { return &memBlob{objects: map[string][]byte{}} }

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = body
	return nil
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for path, body := range m.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(body))})
		}
	}
	return out, nil
}

func testStore(blob *memBlob) *Store {
	s := NewStore(blob, blob, memory.NewCIDCache(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.sleep = func(context.Context, time.Duration) {}
	return s
}

func testPackage() *domain.EvidencePackage {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	m := domain.Market{ID: "0xabc", Question: "Will BTC exceed $100,000?", Category: domain.CategoryCrypto}
	sources := []domain.SourceData{{
		Source:     "coingecko",
		Category:   domain.CategoryCrypto,
		FetchedAt:  now,
		Data:       domain.PricePayload{Symbol: "BTC", PriceUSD: 104500, Timestamp: now},
		Confidence: 9700,
	}}
	verdict := domain.Verdict{
		Outcome:    true,
		Confidence: 9650,
		Reasoning:  []string{"price above threshold"},
		DataPoints: []string{"BTC/USD 104500"},
		Timestamp:  now,
	}
	return Compile(m, sources, verdict, "0xresolver")
}

func TestCompileVerification(t *testing.T) {
	now := time.Now().UTC()

	agree := []domain.SourceData{
		{Source: "a", FetchedAt: now.Add(-time.Minute), Data: domain.PricePayload{PriceUSD: 100.0}},
		{Source: "b", FetchedAt: now.Add(-10 * time.Minute), Data: domain.PricePayload{PriceUSD: 100.5}},
	}
	pkg := Compile(domain.Market{ID: "m"}, agree, domain.Verdict{Outcome: true}, "r")
	if !pkg.Verification.MultiSourceAgreement {
		t.Error("0.5% deviation must count as agreement")
	}
	if pkg.Verification.SourcesUsed != 2 {
		t.Errorf("sources used = %d", pkg.Verification.SourcesUsed)
	}
	if got := pkg.Verification.DataFreshnessSec; got < 595 || got > 605 {
		t.Errorf("freshness = %ds, want about 600", got)
	}

	disagree := []domain.SourceData{
		{Source: "a", FetchedAt: now, Data: domain.PricePayload{PriceUSD: 100}},
		{Source: "b", FetchedAt: now, Data: domain.PricePayload{PriceUSD: 110}},
	}
	pkg = Compile(domain.Market{ID: "m"}, disagree, domain.Verdict{}, "r")
	if pkg.Verification.MultiSourceAgreement {
		t.Error("10% deviation must not count as agreement")
	}
}

func TestCompileAgreementVacuous(t *testing.T) {
	now := time.Now().UTC()
	// One numeric source plus one non-numeric: fewer than two observations.
	sources := []domain.SourceData{
		{Source: "a", FetchedAt: now, Data: domain.PricePayload{PriceUSD: 100}},
		{Source: "news", FetchedAt: now, Data: domain.NewsPayload{Keywords: []string{"btc"}}},
	}
	pkg := Compile(domain.Market{ID: "m"}, sources, domain.Verdict{}, "r")
	if !pkg.Verification.MultiSourceAgreement {
		t.Error("fewer than two numeric observations must be vacuous agreement")
	}
}

func TestCompileBiasCheck(t *testing.T) {
	now := time.Now().UTC()
	single := []domain.SourceData{
		{Source: "coingecko", FetchedAt: now, Data: domain.PricePayload{PriceUSD: 1}},
		{Source: "coingecko", FetchedAt: now, Data: domain.PricePayload{PriceUSD: 1}},
	}
	pkg := Compile(domain.Market{ID: "m"}, single, domain.Verdict{}, "r")
	if !strings.Contains(pkg.Verification.BiasCheck, "single provider") {
		t.Errorf("bias check = %q", pkg.Verification.BiasCheck)
	}

	multi := []domain.SourceData{
		{Source: "coingecko", FetchedAt: now, Data: domain.PricePayload{PriceUSD: 1}},
		{Source: "gnews", FetchedAt: now, Data: domain.NewsPayload{}},
	}
	pkg = Compile(domain.Market{ID: "m"}, multi, domain.Verdict{}, "r")
	if !strings.Contains(pkg.Verification.BiasCheck, "2 independent providers") {
		t.Errorf("bias check = %q", pkg.Verification.BiasCheck)
	}
}

func TestContentIDIgnoresMetadata(t *testing.T) {
	pkg := testPackage()
	before, err := ContentID(pkg)
	if err != nil {
		t.Fatal(err)
	}
	pkg.Metadata = domain.EvidenceMetadata{ContentID: before, TxHash: "0xdead", BlockNumber: 42}
	after, err := ContentID(pkg)
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Errorf("content id changed after metadata write: %s != %s", before, after)
	}
	if !strings.HasPrefix(before, "sha256-") {
		t.Errorf("content id %q missing scheme prefix", before)
	}
}

func TestContentIDChangesWithContent(t *testing.T) {
	a := testPackage()
	b := testPackage()
	b.AIAnalysis.Confidence = 9000
	b.Resolution.Confidence = 9000

	idA, _ := ContentID(a)
	idB, _ := ContentID(b)
	if idA == idB {
		t.Error("different evidence must have different content ids")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	blob := newMemBlob()
	s := testStore(blob)
	pkg := testPackage()

	cid, err := s.Store(context.Background(), pkg)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if pkg.Metadata.ContentID != cid {
		t.Errorf("metadata content id = %q, want %q", pkg.Metadata.ContentID, cid)
	}
	if pkg.Metadata.SizeBytes <= 0 {
		t.Errorf("metadata size = %d, want the canonical byte count", pkg.Metadata.SizeBytes)
	}

	ok, err := s.Verify(context.Background(), cid)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v", ok, err)
	}

	got, err := s.Retrieve(context.Background(), cid)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got.MarketID != pkg.MarketID || got.AIAnalysis.Confidence != pkg.AIAnalysis.Confidence {
		t.Errorf("round trip mismatch: %+v", got)
	}
	price, ok := got.Sources[0].Data.(domain.PricePayload)
	if !ok || price.PriceUSD != 104500 {
		t.Errorf("source payload did not round trip: %T %+v", got.Sources[0].Data, got.Sources[0].Data)
	}
}

func TestStoreIdempotent(t *testing.T) {
	blob := newMemBlob()
	s := testStore(blob)

	first, err := s.Store(context.Background(), testPackage())
	if err != nil {
		t.Fatal(err)
	}
	cached := testPackage()
	second, err := s.Store(context.Background(), cached)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("cids differ: %s != %s", first, second)
	}
	if blob.puts != 1 {
		t.Errorf("puts = %d, want 1 (second store must hit the cid cache)", blob.puts)
	}
	if cached.Metadata.SizeBytes <= 0 {
		t.Errorf("cache hit left metadata size = %d", cached.Metadata.SizeBytes)
	}
}

func TestStoreUploadFailure(t *testing.T) {
	blob := newMemBlob()
	blob.putErr = errors.New("bucket unavailable")
	s := testStore(blob)

	_, err := s.Store(context.Background(), testPackage())
	if !errors.Is(err, domain.ErrStorageUpload) {
		t.Fatalf("err = %v, want ErrStorageUpload", err)
	}
	if blob.puts != 3 {
		t.Errorf("puts = %d, want 3 bounded attempts", blob.puts)
	}
}

func TestRetrieveDetectsTampering(t *testing.T) {
	blob := newMemBlob()
	s := testStore(blob)

	cid, err := s.Store(context.Background(), testPackage())
	if err != nil {
		t.Fatal(err)
	}
	path := blobPath(cid)
	blob.objects[path] = append(blob.objects[path], ' ')

	if _, err := s.Retrieve(context.Background(), cid); err == nil {
		t.Fatal("expected digest mismatch error for tampered bytes")
	}
}

func TestRetrieveMalformedCID(t *testing.T) {
	s := testStore(newMemBlob())
	if _, err := s.Retrieve(context.Background(), "md5-abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
