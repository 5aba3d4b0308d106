package types

import (
	"encoding/json"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestEdited_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		isEdited bool
		ts       int64
		wantErr  bool
	}{
		{name: "false", input: `false`, isEdited: false, ts: 0},
		{name: "legacy true", input: `true`, isEdited: true, ts: 0},
		{name: "timestamp", input: `1704067200`, isEdited: true, ts: 1704067200},
		{name: "float timestamp", input: `1704067200.0`, isEdited: true, ts: 1704067200},
		{name: "null treated as unedited", input: `null`, isEdited: false, ts: 0},
		{name: "garbage", input: `"yes"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Edited
			err := json.Unmarshal([]byte(tt.input), &e)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal(%s) expected error, got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) unexpected error: %v", tt.input, err)
			}
			if e.IsEdited != tt.isEdited || e.Timestamp != tt.ts {
				t.Errorf("Unmarshal(%s) = {%v %d}, want {%v %d}",
					tt.input, e.IsEdited, e.Timestamp, tt.isEdited, tt.ts)
			}
		})
	}
}

func TestRecord_UnmarshalJSON(t *testing.T) {
	raw := `{"id":"abc123","author":"someone","subreddit":"golang",` +
		`"title":"a post","selftext":"body text","created_utc":1704067200.0,` +
		`"score":42,"num_comments":7,"edited":false,"extra_field":"kept"}`

	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("Unmarshal() unexpected error: %v", err)
	}

	if r.ID != "abc123" {
		t.Errorf("ID = %q, want %q", r.ID, "abc123")
	}
	if r.CreatedUTC != 1704067200 {
		t.Errorf("CreatedUTC = %d, want 1704067200", r.CreatedUTC)
	}
	if r.Score != 42 {
		t.Errorf("Score = %d, want 42", r.Score)
	}
	if r.NumComments != 7 {
		t.Errorf("NumComments = %d, want 7", r.NumComments)
	}

	// The full document must survive, including fields the engine ignores.
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(r.Raw, &doc); err != nil {
		t.Fatalf("Raw is not valid JSON: %v", err)
	}
	if _, ok := doc["extra_field"]; !ok {
		t.Error("Raw lost extra_field")
	}
}

func TestRecord_UnmarshalJSON_MissingID(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`{"author":"x"}`), &r); err == nil {
		t.Error("Unmarshal() without id expected error, got none")
	}
}

func TestRecord_IsDeleted(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		expected bool
	}{
		{
			name: "live submission",
			record: Record{
				ID: "a", Author: "user", Title: "t", Selftext: "content",
				titlePresent: true,
			},
			expected: false,
		},
		{
			name: "removed_by_category set",
			record: Record{
				ID: "a", Author: "user", Title: "t", Selftext: "content",
				titlePresent: true, RemovedByCategory: strPtr("moderator"),
			},
			expected: true,
		},
		{
			name: "removal_reason set",
			record: Record{
				ID: "a", Author: "user", Body: "content",
				RemovalReason: strPtr("spam"),
			},
			expected: true,
		},
		{
			name:     "scrubbed author",
			record:   Record{ID: "a", Author: "[deleted]", Body: "content"},
			expected: true,
		},
		{
			name:     "missing author",
			record:   Record{ID: "a", Body: "content"},
			expected: true,
		},
		{
			name:     "removed body marker",
			record:   Record{ID: "a", Author: "user", Body: "[removed]"},
			expected: true,
		},
		{
			name: "deleted selftext marker on submission",
			record: Record{
				ID: "a", Author: "user", Title: "t",
				Selftext: "[Deleted By User]", titlePresent: true,
			},
			expected: true,
		},
		{
			name: "bracketed but not a deletion marker",
			record: Record{
				ID: "a", Author: "user", Body: "[serious] what is your take?",
			},
			expected: false,
		},
		{
			name: "long bracketed text is content",
			record: Record{
				ID: "a", Author: "user",
				Body: "[removed from context] " + stringOfLen(120),
			},
			expected: false,
		},
		{
			name:     "empty comment body",
			record:   Record{ID: "a", Author: "user", Body: ""},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.IsDeleted(); got != tt.expected {
				t.Errorf("IsDeleted() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestRecord_LastActivity(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		expected int64
	}{
		{
			name:     "unedited uses creation time",
			record:   Record{CreatedUTC: 100},
			expected: 100,
		},
		{
			name:     "edited uses edit timestamp",
			record:   Record{CreatedUTC: 100, Edited: Edited{IsEdited: true, Timestamp: 200}},
			expected: 200,
		},
		{
			name:     "legacy edit without timestamp falls back",
			record:   Record{CreatedUTC: 100, Edited: Edited{IsEdited: true}},
			expected: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.LastActivity(); got != tt.expected {
				t.Errorf("LastActivity() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestRecord_ParentID(t *testing.T) {
	r := Record{LinkID: "t3_abc123"}
	if got := r.ParentID(); got != "abc123" {
		t.Errorf("ParentID() = %q, want %q", got, "abc123")
	}
	r = Record{LinkID: "abc123"}
	if got := r.ParentID(); got != "abc123" {
		t.Errorf("ParentID() without prefix = %q, want %q", got, "abc123")
	}
}

func TestRecord_MarshalJSON_WithComments(t *testing.T) {
	var parent Record
	if err := json.Unmarshal([]byte(`{"id":"p1","title":"t","author":"u","created_utc":10}`), &parent); err != nil {
		t.Fatalf("Unmarshal parent: %v", err)
	}
	var child Record
	if err := json.Unmarshal([]byte(`{"id":"c1","link_id":"t3_p1","author":"u","body":"hi","created_utc":11}`), &child); err != nil {
		t.Fatalf("Unmarshal child: %v", err)
	}
	parent.Comments = []*Record{&child}

	out, err := json.Marshal(&parent)
	if err != nil {
		t.Fatalf("Marshal() unexpected error: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("round-trip decode: %v", err)
	}
	var comments []Record
	if err := json.Unmarshal(doc["comments"], &comments); err != nil {
		t.Fatalf("decode comments: %v", err)
	}
	if len(comments) != 1 || comments[0].ID != "c1" {
		t.Errorf("comments = %+v, want single record c1", comments)
	}
}

func TestRecord_Project(t *testing.T) {
	var r Record
	raw := `{"id":"p1","title":"t","author":"u","created_utc":10,"score":5}`
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	out, err := r.Project([]string{"id", "score", "does_not_exist"})
	if err != nil {
		t.Fatalf("Project() unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("Project() kept %d fields, want 2", len(out))
	}
	if string(out["score"]) != "5" {
		t.Errorf("score = %s, want 5", out["score"])
	}
}
