package core

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func validRecord() *Record {
	return &Record{
		ID:     "u1_d1_chunk0",
		Vector: []float32{0.1, 0.2, 0.3},
		Metadata: Metadata{
			OwnerID:    "u1",
			DocumentID: "d1",
			ChunkIndex: 0,
			Content:    "hello",
			Timestamp:  time.Now().Add(-time.Hour),
		},
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Record)
		dim     int
		wantErr error
	}{
		{name: "valid record", mutate: func(r *Record) {}, dim: 3},
		{name: "dimension not enforced", mutate: func(r *Record) {}, dim: 0},
		{name: "missing owner", mutate: func(r *Record) { r.Metadata.OwnerID = "" }, dim: 3, wantErr: ErrInvalidOwnerID},
		{name: "missing document", mutate: func(r *Record) { r.Metadata.DocumentID = " " }, dim: 3, wantErr: ErrInvalidDocumentID},
		{name: "negative index", mutate: func(r *Record) { r.Metadata.ChunkIndex = -1 }, dim: 3, wantErr: ErrInvalidRecord},
		{name: "mismatched id", mutate: func(r *Record) { r.ID = "u1_d1_chunk7" }, dim: 3, wantErr: ErrInvalidRecord},
		{name: "wrong dimension", mutate: func(r *Record) {}, dim: 1536, wantErr: ErrInvalidEmbedding},
		{name: "empty vector", mutate: func(r *Record) { r.Vector = nil }, dim: 3, wantErr: ErrInvalidEmbedding},
		{name: "nan component", mutate: func(r *Record) { r.Vector[1] = float32(math.NaN()) }, dim: 3, wantErr: ErrInvalidEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)
			err := ValidateRecord(r, tt.dim)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRecord() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRecord() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRecord_Nil(t *testing.T) {
	if err := ValidateRecord(nil, 0); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("ValidateRecord(nil) error = %v, want %v", err, ErrInvalidRecord)
	}
}

func TestValidateDocument(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{name: "valid", doc: &Document{OwnerID: "u1", DocumentID: "d1", Timestamp: past}},
		{name: "zero timestamp", doc: &Document{OwnerID: "u1", DocumentID: "d1"}},
		{name: "empty text allowed", doc: &Document{OwnerID: "u1", DocumentID: "d1", Text: ""}},
		{name: "nil", doc: nil, wantErr: ErrInvalidRecord},
		{name: "missing owner", doc: &Document{DocumentID: "d1"}, wantErr: ErrInvalidOwnerID},
		{name: "missing document", doc: &Document{OwnerID: "u1"}, wantErr: ErrInvalidDocumentID},
		{name: "future timestamp", doc: &Document{OwnerID: "u1", DocumentID: "d1", Timestamp: future}, wantErr: ErrInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidateDocument() unexpected error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransient(t *testing.T) {
	base := errors.New("connection reset")

	wrapped := Transient(base)
	if !IsTransient(wrapped) {
		t.Errorf("IsTransient() = false for wrapped error")
	}
	if !errors.Is(wrapped, base) {
		t.Errorf("Transient() lost the original error")
	}
	if Transient(wrapped) != wrapped {
		t.Errorf("Transient() wrapped an already transient error twice")
	}
	if IsTransient(base) {
		t.Errorf("IsTransient() = true for plain error")
	}
	if Transient(nil) != nil {
		t.Errorf("Transient(nil) should be nil")
	}

	layered := fmt.Errorf("%w: %w", ErrStore, wrapped)
	if !IsTransient(layered) || !errors.Is(layered, ErrStore) {
		t.Errorf("classification lost through wrapping: %v", layered)
	}
}

func TestIsValidTimestamp(t *testing.T) {
	if !IsValidTimestamp(time.Now().Add(-time.Second)) {
		t.Errorf("past timestamp reported invalid")
	}
	if IsValidTimestamp(time.Now().Add(time.Hour)) {
		t.Errorf("future timestamp reported valid")
	}
}
