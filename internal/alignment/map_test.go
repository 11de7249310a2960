package alignment

import (
	"reflect"
	"testing"

	"paperqa/internal/corpus"
)

func TestMap_CandidatesFor(t *testing.T) {
	m := New([]corpus.AlignmentEntry{
		{ParagraphID: "p1", CodeChunkID: "c3", Confidence: 0.4},
		{ParagraphID: "p1", CodeChunkID: "c1", Confidence: 0.9},
		{ParagraphID: "p1", CodeChunkID: "c2", Confidence: 0.6},
		{ParagraphID: "p1", CodeChunkID: "c2", Confidence: 0.7},
		{ParagraphID: "p1", CodeChunkID: "c4", Confidence: 0.6},
		{ParagraphID: "p2", CodeChunkID: "c1", Confidence: 0.5},
		{ParagraphID: "", CodeChunkID: "c9", Confidence: 1},
	})

	tests := []struct {
		name      string
		paragraph string
		min       float64
		want      []Candidate
	}{
		{
			name:      "sorted and filtered",
			paragraph: "p1",
			min:       0.5,
			want: []Candidate{
				{CodeChunkID: "c1", Confidence: 0.9},
				{CodeChunkID: "c2", Confidence: 0.7},
				{CodeChunkID: "c4", Confidence: 0.6},
			},
		},
		{
			name:      "floor is inclusive",
			paragraph: "p2",
			min:       0.5,
			want:      []Candidate{{CodeChunkID: "c1", Confidence: 0.5}},
		},
		{
			name:      "nothing above floor",
			paragraph: "p2",
			min:       0.51,
			want:      nil,
		},
		{
			name:      "unknown paragraph",
			paragraph: "p404",
			min:       0,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.CandidatesFor(tt.paragraph, tt.min)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CandidatesFor() = %v, want %v", got, tt.want)
			}
		})
	}

	if m.Len() != 5 {
		t.Errorf("Len() = %d, want 5", m.Len())
	}
	if m.Paragraphs() != 2 {
		t.Errorf("Paragraphs() = %d, want 2", m.Paragraphs())
	}
}

func TestMap_ResultIsACopy(t *testing.T) {
	m := New([]corpus.AlignmentEntry{{ParagraphID: "p", CodeChunkID: "c", Confidence: 0.8}})
	got := m.CandidatesFor("p", 0)
	got[0].Confidence = 0
	if again := m.CandidatesFor("p", 0); again[0].Confidence != 0.8 {
		t.Errorf("map was mutated through a returned slice: %v", again)
	}
}

func TestMap_Nil(t *testing.T) {
	var m *Map
	if got := m.CandidatesFor("p", 0); got != nil {
		t.Errorf("nil map CandidatesFor() = %v", got)
	}
	if m.Len() != 0 || m.Paragraphs() != 0 {
		t.Error("nil map should be empty")
	}
}
