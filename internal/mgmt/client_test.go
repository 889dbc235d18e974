package mgmt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"stacksync/internal/platform"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-token")
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("http://localhost", "")
	if !errors.Is(err, platform.ErrAccessTokenMissing) {
		t.Errorf("err = %v, want ErrAccessTokenMissing", err)
	}
}

func TestListFunctions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/ref-a/functions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode([]FunctionInfo{
			{Slug: "hello", Status: "ACTIVE"},
			{Slug: "goodbye", Status: "ACTIVE"},
		})
	})

	functions, err := client.ListFunctions(context.Background(), "ref-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(functions) != 2 || functions[0].Slug != "hello" || functions[1].Slug != "goodbye" {
		t.Errorf("functions = %+v", functions)
	}
}

func TestListFunctionsAuthFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.ListFunctions(context.Background(), "ref-a")
	if !errors.Is(err, platform.ErrAuthFailed) {
		t.Errorf("err = %v, want ErrAuthFailed", err)
	}
}

func TestListFunctionsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.ListFunctions(context.Background(), "ref-a")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeployFunctionMultipart(t *testing.T) {
	var gotSlug string
	var gotFiles []string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/ref-a/functions/hello/deploy" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}

		var meta map[string]string
		if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
			t.Fatal(err)
		}
		gotSlug = meta["slug"]

		for _, headers := range r.MultipartForm.File {
			for _, h := range headers {
				gotFiles = append(gotFiles, h.Filename)
				f, err := h.Open()
				if err != nil {
					t.Fatal(err)
				}
				io.Copy(io.Discard, f)
				f.Close()
			}
		}
		w.WriteHeader(http.StatusCreated)
	})

	files := []DeployFile{
		{Path: "index.ts", Content: []byte("export default handler")},
		{Path: "lib/util.ts", Content: []byte("export const x = 1")},
	}
	if err := client.DeployFunction(context.Background(), "ref-a", "hello", files); err != nil {
		t.Fatal(err)
	}

	if gotSlug != "hello" {
		t.Errorf("metadata slug = %q", gotSlug)
	}
	if len(gotFiles) != 2 {
		t.Errorf("uploaded files = %v, want 2 entries", gotFiles)
	}
}

func TestSecretsRoundTrip(t *testing.T) {
	var stored []Secret
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			// Values are write-only: names come back, values do not.
			names := make([]Secret, len(stored))
			for i, s := range stored {
				names[i] = Secret{Name: s.Name}
			}
			json.NewEncoder(w).Encode(names)
		case http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&stored); err != nil {
				t.Fatal(err)
			}
			w.WriteHeader(http.StatusOK)
		}
	})

	ctx := context.Background()
	in := []Secret{{Name: "API_KEY", Value: "abc"}, {Name: "DB_URL", Value: "postgres://x"}}
	if err := client.SetSecrets(ctx, "ref-a", in); err != nil {
		t.Fatal(err)
	}

	out, err := client.ListSecrets(ctx, "ref-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("secrets = %+v, want 2", out)
	}
	for _, s := range out {
		if s.Value != "" {
			t.Errorf("secret %s came back with a value; values are write-only", s.Name)
		}
	}
}
