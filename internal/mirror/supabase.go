package mirror

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/supabase-community/postgrest-go"

	"github.com/sujalbistaa/confessions/internal/models"
)

const (
	defaultSupabaseTable = "confessions"
	supabaseRESTPath     = "/rest/v1"
)

// Supabase writes to a Supabase table with the columns confession and like.
// Rows are matched by their text, as the remote table has no copy of the
// primary id.
type Supabase struct {
	RESTURL string
	APIKey  string
	Table   string
	// Transport carries the requests; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

func NewSupabase(baseURL, apiKey string) *Supabase {
	return &Supabase{
		RESTURL: strings.TrimRight(baseURL, "/") + supabaseRESTPath,
		APIKey:  apiKey,
		Table:   defaultSupabaseTable,
	}
}

// Ensure Supabase implements Mirror
var _ Mirror = (*Supabase)(nil)

type supabaseRow struct {
	Confession string `json:"confession"`
	Like       int    `json:"like"`
}

func (s *Supabase) InsertConfession(ctx context.Context, c models.Confession) error {
	rows := []supabaseRow{{Confession: c.Content, Like: c.Likes}}
	_, _, err := s.client(ctx).From(s.Table).
		Insert(rows, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("supabase insert into %s: %w", s.Table, err)
	}
	return nil
}

func (s *Supabase) UpdateLikes(ctx context.Context, c models.Confession) error {
	_, _, err := s.client(ctx).From(s.Table).
		Update(map[string]int{"like": c.Likes}, "minimal", "").
		Eq("confession", c.Content).
		Execute()
	if err != nil {
		return fmt.Errorf("supabase update likes in %s: %w", s.Table, err)
	}
	return nil
}

// client builds a PostgREST client whose requests are bound to ctx. The
// client keeps its last error, so one is built per call.
func (s *Supabase) client(ctx context.Context) *postgrest.Client {
	c := postgrest.NewClient(s.RESTURL, "", nil)
	if c.ClientError != nil {
		// Execute reports it.
		return c
	}
	c.SetApiKey(s.APIKey).SetAuthToken(s.APIKey)
	c.Transport.Parent = contextTransport{ctx: ctx, base: s.Transport}
	return c
}

// contextTransport attaches a context to requests built without one.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req.WithContext(t.ctx))
}
