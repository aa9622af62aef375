package convstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docmill/docmill/backend"
	"github.com/docmill/docmill/convstore"
	"github.com/docmill/docmill/pipeline"
)

func sampleResult(status pipeline.Status) *pipeline.ConversionResult {
	res := &pipeline.ConversionResult{
		Input:  pipeline.NewInvalidInput("report.pdf", backend.FormatPDF),
		Status: status,
	}
	if status == pipeline.StatusPartialSuccess {
		res.AddError(pipeline.ComponentBackend, "standard_pdf", "Page 3 failed to parse.")
	}
	return res
}

func TestStoreSaveAndGet(t *testing.T) {
	db := convstore.OpenMemory(t)
	store := convstore.NewStore(db)
	ctx := context.Background()

	res := sampleResult(pipeline.StatusPartialSuccess)
	if err := store.Save(ctx, "cnv_1", res, 1500*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	rec, err := store.Get(ctx, "cnv_1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "report.pdf" {
		t.Errorf("name = %q, want report.pdf", rec.Name)
	}
	if rec.Status != pipeline.StatusPartialSuccess {
		t.Errorf("status = %s, want partial_success", rec.Status)
	}
	if len(rec.Errors) != 1 || rec.Errors[0].Module != "standard_pdf" {
		t.Errorf("errors = %+v, want one standard_pdf item", rec.Errors)
	}
	if rec.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %s, want 1.5s", rec.Duration)
	}
}

func TestStoreGetMissing(t *testing.T) {
	db := convstore.OpenMemory(t)
	store := convstore.NewStore(db)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, convstore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStoreListByStatus(t *testing.T) {
	db := convstore.OpenMemory(t)
	store := convstore.NewStore(db)
	ctx := context.Background()

	for i, status := range []pipeline.Status{
		pipeline.StatusSuccess, pipeline.StatusFailure, pipeline.StatusSuccess,
	} {
		id := string(rune('a' + i))
		if err := store.Save(ctx, id, sampleResult(status), time.Second); err != nil {
			t.Fatal(err)
		}
	}

	ok, err := store.ListByStatus(ctx, pipeline.StatusSuccess, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ok) != 2 {
		t.Fatalf("got %d success records, want 2", len(ok))
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[pipeline.StatusSuccess] != 2 || counts[pipeline.StatusFailure] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestStoreDuplicateID(t *testing.T) {
	db := convstore.OpenMemory(t)
	store := convstore.NewStore(db)
	ctx := context.Background()

	if err := store.Save(ctx, "dup", sampleResult(pipeline.StatusSuccess), 0); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "dup", sampleResult(pipeline.StatusSuccess), 0); err == nil {
		t.Fatal("expected primary key violation")
	}
}
