package tree_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/tree"
	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// --- Create Tests ---

func TestCreate_BucketGeneratesID(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)

	id, err := tr.Create(ctx, treepath.Parse("/messages"), jsonValue(t, `{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(id) {
		t.Errorf("expected 32 hex characters, got %q", id)
	}
	assertValue(t, get(t, tr, "/messages/"+id), `{"text":"hi"}`)
}

func TestCreate_IDsAreUnique(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id, err := tr.Create(ctx, treepath.Parse("/b"), value.Number(float64(i)))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	res, err := tr.Get(ctx, treepath.Parse("/b"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(res.Entries) != 20 {
		t.Errorf("expected 20 records, got %d", len(res.Entries))
	}
}

func TestCreate_RootCreatesBucket(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, func(c *tree.Config) {
		c.NewID = func() string { return "generated" }
	})

	name, err := tr.Create(ctx, treepath.Parse("/"), jsonValue(t, `{"a":1,"b":{"c":2}}`))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if name != "generated" {
		t.Errorf("expected injected id, got %q", name)
	}
	assertValue(t, get(t, tr, "/generated"), `{"a":1,"b":{"c":2}}`)
}

func TestCreate_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want error
	}{
		{"null payload", "/b", `null`, tree.ErrInvalidPayload},
		{"record path", "/b/r", `1`, tree.ErrInvalidPath},
		{"field path", "/b/r/f", `1`, tree.ErrInvalidPath},
		{"root sequence", "/", `[1,2]`, tree.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTree(t)
			_, err := tr.Create(context.Background(), treepath.Parse(tt.path), jsonValue(t, tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// --- Replace Tests ---

func TestReplace_RoundTrip(t *testing.T) {
	values := []string{
		`42`,
		`-1.5`,
		`"text"`,
		`true`,
		`false`,
		`[]`,
		`[1,"two",{"three":3}]`,
		`{}`,
		`{"a":{"b":{"c":[null,true]}}}`,
	}
	paths := []string{"/b/r", "/b/r/f", "/b/r/deep/er/field"}

	for _, raw := range values {
		for _, p := range paths {
			t.Run(p+"="+raw, func(t *testing.T) {
				tr, _ := newTree(t)
				in := jsonValue(t, raw)
				out, err := tr.Replace(context.Background(), treepath.Parse(p), in)
				if err != nil {
					t.Fatalf("Replace failed: %v", err)
				}
				if !value.Equal(out, in) {
					t.Errorf("expected Replace to return %s, got %s", in, out)
				}
				assertValue(t, get(t, tr, p), raw)
			})
		}
	}
}

func TestReplace_Idempotent(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)
	p := treepath.Parse("/b/r/f")
	v := jsonValue(t, `{"x":[1,2]}`)

	for i := 0; i < 3; i++ {
		if _, err := tr.Replace(ctx, p, v); err != nil {
			t.Fatalf("Replace %d failed: %v", i, err)
		}
	}
	assertValue(t, get(t, tr, "/b/r"), `{"f":{"x":[1,2]}}`)
}

func TestReplace_FieldPreservesSiblings(t *testing.T) {
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/users/alice": `{"name":"Alice","profile":{"age":30,"city":"Oslo"}}`})

	if _, err := tr.Replace(context.Background(), treepath.Parse("/users/alice/profile/age"), value.Number(31)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	assertValue(t, get(t, tr, "/users/alice"), `{"name":"Alice","profile":{"age":31,"city":"Oslo"}}`)
}

func TestReplace_NumericLookingIDStaysText(t *testing.T) {
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/b/007": `1`, "/b/7": `2`})

	assertValue(t, get(t, tr, "/b"), `{"007":1,"7":2}`)
}

func TestReplace_Bucket(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/b/old": `1`})

	if _, err := tr.Replace(ctx, treepath.Parse("/b"), jsonValue(t, `{"x":1,"y":{"z":2},"skipped":null}`)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	assertValue(t, get(t, tr, "/b"), `{"x":1,"y":{"z":2}}`)
}

func TestReplace_Root(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/gone/r": `1`})
	if _, err := tr.SetIndex(ctx, treepath.Parse("/a"), value.Text("n")); err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}

	root := `{"a":{"r":{"n":1}},"b":{"s":{"t":true}}}`
	if _, err := tr.Replace(ctx, treepath.Parse("/"), jsonValue(t, root)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	assertValue(t, get(t, tr, "/"), root)

	if _, ok, err := tr.GetIndex(ctx, treepath.Parse("/a")); err != nil || !ok {
		t.Errorf("expected index rules to survive a root replace, ok=%v err=%v", ok, err)
	}
}

func TestReplace_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want error
	}{
		{"null at record", "/b/r", `null`, tree.ErrInvalidPayload},
		{"sequence at bucket", "/b", `[1,2]`, tree.ErrInvalidPayload},
		{"scalar at bucket", "/b", `1`, tree.ErrInvalidPayload},
		{"nested id at bucket", "/b", `{"a/b":1}`, tree.ErrInvalidPayload},
		{"sequence at root", "/", `[{"a":1}]`, tree.ErrInvalidPayload},
		{"scalar bucket at root", "/", `{"b":1}`, tree.ErrInvalidPayload},
		{"reserved bucket at root", "/", `{"__rules__":{}}`, tree.ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTree(t)
			_, err := tr.Replace(context.Background(), treepath.Parse(tt.path), jsonValue(t, tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// --- Merge Tests ---

func TestMerge_NonDestructive(t *testing.T) {
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/b/r": `{"b":2}`})

	out, err := tr.Merge(context.Background(), treepath.Parse("/b/r"), jsonValue(t, `{"a":1}`))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	assertValue(t, out, `{"a":1}`)
	assertValue(t, get(t, tr, "/b/r"), `{"a":1,"b":2}`)
}

func TestMerge_RelativeKeys(t *testing.T) {
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/users/alice": `{"profile":{"name":"A","age":3}}`})

	_, err := tr.Merge(context.Background(), treepath.Parse("/users/alice"), jsonValue(t, `{"profile/age":4,"tags":[1]}`))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	assertValue(t, get(t, tr, "/users/alice"), `{"profile":{"name":"A","age":4},"tags":[1]}`)
}

func TestMerge_FieldPath(t *testing.T) {
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/b/r": `{"x":{"keep":true},"y":1}`})

	_, err := tr.Merge(context.Background(), treepath.Parse("/b/r/x"), jsonValue(t, `{"add":"z"}`))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	assertValue(t, get(t, tr, "/b/r"), `{"x":{"keep":true,"add":"z"},"y":1}`)
}

func TestMerge_MissingRecordInserts(t *testing.T) {
	tr, _ := newTree(t)

	_, err := tr.Merge(context.Background(), treepath.Parse("/b/r/x"), jsonValue(t, `{"y":1,"p/q":2,"n":null}`))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	assertValue(t, get(t, tr, "/b/r"), `{"x":{"y":1,"p":{"q":2}}}`)
}

func TestMerge_NullRemovesField(t *testing.T) {
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/b/r": `{"a":1,"b":2}`})

	if _, err := tr.Merge(context.Background(), treepath.Parse("/b/r"), jsonValue(t, `{"a":null}`)); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	assertValue(t, get(t, tr, "/b/r"), `{"b":2}`)
}

func TestMerge_NullEmptyingRecordCleansUp(t *testing.T) {
	ctx := context.Background()
	tr, a := newTree(t)
	seed(t, tr, map[string]string{"/b/r": `{"a":1}`})

	if _, err := tr.Merge(ctx, treepath.Parse("/b/r"), jsonValue(t, `{"a":null}`)); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if _, err := tr.Get(ctx, treepath.Parse("/b/r")); !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("expected record to be removed, got %v", err)
	}
	buckets, err := a.ListBuckets(ctx)
	if err != nil {
		t.Fatalf("ListBuckets failed: %v", err)
	}
	if len(buckets) != 0 {
		t.Errorf("expected empty bucket to be dropped, got %v", buckets)
	}
}

func TestMerge_Bucket(t *testing.T) {
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/b/keep": `1`, "/b/swap": `{"old":true}`, "/b/drop": `3`})

	_, err := tr.Merge(context.Background(), treepath.Parse("/b"), jsonValue(t, `{"swap":{"new":true},"add":4,"drop":null,"missing":null}`))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	assertValue(t, get(t, tr, "/b"), `{"keep":1,"swap":{"new":true},"add":4}`)
}

func TestMerge_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want error
	}{
		{"sequence", "/b/r", `[1]`, tree.ErrInvalidPayload},
		{"scalar", "/b/r", `1`, tree.ErrInvalidPayload},
		{"null", "/b/r", `null`, tree.ErrInvalidPayload},
		{"empty key", "/b/r", `{"/":1}`, tree.ErrInvalidPayload},
		{"scalar bucket at root", "/", `{"b":1}`, tree.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTree(t)
			_, err := tr.Merge(context.Background(), treepath.Parse(tt.path), jsonValue(t, tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// --- Remove Tests ---

func TestRemove_LastFieldRemovesRecord(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/b/r": `{"only":1}`, "/b/other": `2`})

	if err := tr.Remove(ctx, treepath.Parse("/b/r/only")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	res, err := tr.Get(ctx, treepath.Parse("/b"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	assertKeys(t, res, "other")
	if _, err := tr.Get(ctx, treepath.Parse("/b/r")); !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemove_FieldKeepsSiblings(t *testing.T) {
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/b/r": `{"a":{"x":1,"y":2},"b":3}`})

	if err := tr.Remove(context.Background(), treepath.Parse("/b/r/a/x")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	assertValue(t, get(t, tr, "/b/r"), `{"a":{"y":2},"b":3}`)
}

func TestRemove_SequenceElement(t *testing.T) {
	tr, _ := newTree(t)
	seed(t, tr, map[string]string{"/b/r": `{"list":["a","b","c"]}`})

	if err := tr.Remove(context.Background(), treepath.Parse("/b/r/list/1")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	assertValue(t, get(t, tr, "/b/r/list"), `["a","c"]`)
}

func TestRemove_RecordDropsEmptyBucket(t *testing.T) {
	ctx := context.Background()
	tr, a := newTree(t)
	seed(t, tr, map[string]string{"/b/r": `1`, "/keep/r": `2`})

	if err := tr.Remove(ctx, treepath.Parse("/b/r")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	buckets, err := a.ListBuckets(ctx)
	if err != nil {
		t.Fatalf("ListBuckets failed: %v", err)
	}
	if len(buckets) != 1 || buckets[0] != "keep" {
		t.Errorf("expected only 'keep', got %v", buckets)
	}
}

func TestRemove_AsyncBucketCleanupLeavesBucket(t *testing.T) {
	ctx := context.Background()
	tr, a := newTree(t, func(c *tree.Config) { c.SyncBucketCleanup = false })
	seed(t, tr, map[string]string{"/b/r": `1`})

	if err := tr.Remove(ctx, treepath.Parse("/b/r")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	buckets, err := a.ListBuckets(ctx)
	if err != nil {
		t.Fatalf("ListBuckets failed: %v", err)
	}
	if len(buckets) != 1 {
		t.Errorf("expected bucket to remain for async cleanup, got %v", buckets)
	}
	res, err := tr.Get(ctx, treepath.Parse("/"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.IsNull() {
		t.Errorf("expected empty bucket to be hidden from root listing, got %v", res.Keys())
	}
}

func TestRemove_NotFound(t *testing.T) {
	tests := []string{"/b/missing", "/b/r/missing", "/b/r/a/deeper"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			tr, _ := newTree(t)
			seed(t, tr, map[string]string{"/b/r": `{"a":1}`})
			err := tr.Remove(context.Background(), treepath.Parse(raw))
			if !errors.Is(err, tree.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRemove_BucketAndRootIdempotent(t *testing.T) {
	ctx := context.Background()
	tr, a := newTree(t)
	seed(t, tr, map[string]string{"/a/r": `1`, "/b/r": `2`})
	if _, err := tr.SetIndex(ctx, treepath.Parse("/a"), value.Null()); err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := tr.Remove(ctx, treepath.Parse("/a")); err != nil {
			t.Fatalf("bucket remove %d failed: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := tr.Remove(ctx, treepath.Parse("/")); err != nil {
			t.Fatalf("root remove %d failed: %v", i, err)
		}
	}
	if res, err := tr.Get(ctx, treepath.Parse("/")); err != nil || !res.IsNull() {
		t.Errorf("expected empty root, got %v (err %v)", res.Keys(), err)
	}
	if _, ok, _ := tr.GetIndex(ctx, treepath.Parse("/a")); !ok {
		t.Error("expected index rules to survive a root remove")
	}
	if recs, _ := a.FindMany(ctx, "b", store.FindOptions{}); len(recs) != 0 {
		t.Errorf("expected bucket b to be dropped, got %d records", len(recs))
	}
}

// --- Concurrency Tests ---

func TestConcurrent_DistinctPaths(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := treepath.Parse(fmt.Sprintf("/b/r/f%02d", i))
			if _, err := tr.Replace(ctx, p, value.Number(float64(i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Replace failed: %v", err)
	}

	got := get(t, tr, "/b/r")
	if got.Len() != writers {
		t.Fatalf("expected %d fields, got %s", writers, got)
	}
	for i := 0; i < writers; i++ {
		f, ok := got.Field(fmt.Sprintf("f%02d", i))
		if n, _ := f.AsNumber(); !ok || n != float64(i) {
			t.Errorf("field f%02d: expected %d, got %s", i, i, f)
		}
	}
}

func TestConcurrent_SamePathLastWriteWins(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)
	p := treepath.Parse("/b/r/f")
	payloads := []value.Value{
		jsonValue(t, `{"x":{"a":1,"b":1}}`),
		jsonValue(t, `{"x":{"c":2}}`),
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := tr.Replace(ctx, p, payloads[i%2]); err != nil {
				t.Errorf("Replace failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got := get(t, tr, "/b/r/f")
	if !value.Equal(got, payloads[0]) && !value.Equal(got, payloads[1]) {
		t.Errorf("expected one of the payloads, got mixture %s", got)
	}
}
