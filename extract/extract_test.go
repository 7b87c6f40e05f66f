package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/config"
	"github.com/imkonsowa/restaurant-chatbot/llm"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []llm.Options
	sent  [][]models.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []models.Message, opts llm.Options) (llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, opts)
	f.sent = append(f.sent, messages)
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	return llm.Completion{Text: f.text, StopReason: llm.StopReasonStop}, nil
}

type remoteStub struct {
	srv     *httptest.Server
	mu      sync.Mutex
	hits    int
	payload map[string]any
	auth    string
}

func newRemote(t *testing.T, status int, body string) *remoteStub {
	t.Helper()

	stub := &remoteStub{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.hits++
		stub.auth = r.Header.Get("X-Authorization")
		_ = json.NewDecoder(r.Body).Decode(&stub.payload)
		stub.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(stub.srv.Close)

	return stub
}

func (s *remoteStub) seen() (int, map[string]any, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.payload, s.auth
}

func extractionConfig(t *testing.T, mode, remoteURL string) config.Extraction {
	ext := config.Extractor{
		Mode:           mode,
		RemoteURL:      remoteURL,
		PromptBasename: "missing",
		LocalTimeout:   time.Second,
		RemoteTimeout:  2 * time.Second,
	}
	criteria, reviews := ext, ext
	criteria.MaxTokens = 768
	reviews.MaxTokens = 512

	return config.Extraction{
		PromptsDir:   t.TempDir(),
		RemoteAPIKey: "secret",
		Criteria:     criteria,
		Reviews:      reviews,
	}
}

var userTurn = []models.Message{{Role: models.RoleUser, Content: "2 uramaki piccante a domicilio"}}

func TestCriteria_LocalSuccess(t *testing.T) {
	model := &fakeCompleter{text: "```json\n[{\"delivery_type\":\"domicilio\",\"confirmed_products\":[{\"name\":\"uramaki piccante\",\"quantity\":2}]}]\n```"}
	remote := newRemote(t, http.StatusOK, `{"messages":[]}`)

	c := NewCriteria(extractionConfig(t, ModeLocal, remote.srv.URL), model)
	res, err := c.Extract(context.Background(), userTurn, "s1")
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, models.FlexString("domicilio"), res[0].DeliveryType)
	require.Equal(t, "uramaki piccante", res[0].ConfirmedProducts[0].Name)
	hits, _, _ := remote.seen()
	require.Zero(t, hits)

	require.Len(t, model.calls, 1)
	opts := model.calls[0]
	require.Zero(t, opts.Temperature)
	require.Equal(t, 0.1, opts.TopP)
	require.Equal(t, 768, opts.MaxTokens)
	require.True(t, opts.JSONMode)

	sent := model.sent[0]
	require.Equal(t, models.RoleSystem, sent[0].Role)
	require.NotEmpty(t, sent[0].Content)
	require.Equal(t, userTurn[0], sent[1])
}

func TestCriteria_LocalEmptyFallsBackToRemote(t *testing.T) {
	model := &fakeCompleter{text: "[]"}
	remote := newRemote(t, http.StatusOK, `{"messages":["{\"delivery_type\":\"asporto\"}", "not json", "[{\"address\":\"x\"}]", {"address":"Via Po 1"}]}`)

	c := NewCriteria(extractionConfig(t, ModeLocal, remote.srv.URL), model)
	res, err := c.Extract(context.Background(), userTurn, "s1")
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, models.FlexString("asporto"), res[0].DeliveryType)
	require.Equal(t, models.FlexString("Via Po 1"), res[1].Address)

	hits, payload, auth := remote.seen()
	require.Equal(t, 1, hits)
	require.Equal(t, "secret", auth)
	require.Equal(t, "s1", payload["sessionid4dataapi"])
	require.Len(t, payload["chat"], 1)
}

func TestCriteria_RemoteOmitsEmptySession(t *testing.T) {
	remote := newRemote(t, http.StatusOK, `{"messages":[]}`)

	c := NewCriteria(extractionConfig(t, ModeRemote, remote.srv.URL), &fakeCompleter{})
	res, err := c.Extract(context.Background(), userTurn, "")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Empty(t, res)
	_, payload, _ := remote.seen()
	require.NotContains(t, payload, "sessionid4dataapi")
}

func TestCriteria_RemoteModeSkipsModel(t *testing.T) {
	model := &fakeCompleter{text: `[{"delivery_type":"domicilio"}]`}
	remote := newRemote(t, http.StatusOK, `{"messages":["{\"delivery_type\":\"asporto\"}"]}`)

	c := NewCriteria(extractionConfig(t, ModeRemote, remote.srv.URL), model)
	res, err := c.Extract(context.Background(), userTurn, "s1")
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, models.FlexString("asporto"), res[0].DeliveryType)
	require.Empty(t, model.calls)
}

func TestCriteria_EveryTierFails(t *testing.T) {
	model := &fakeCompleter{err: errors.New("connection refused")}
	remote := newRemote(t, http.StatusInternalServerError, `{"error":"boom"}`)

	c := NewCriteria(extractionConfig(t, ModeLocal, remote.srv.URL), model)
	res, err := c.Extract(context.Background(), userTurn, "s1")
	require.ErrorIs(t, err, ErrNoResult)
	require.NotNil(t, res)
	require.Empty(t, res)
}

func TestCriteria_LocalEmptyWithoutRemote(t *testing.T) {
	c := NewCriteria(extractionConfig(t, ModeLocal, ""), &fakeCompleter{text: "[]"})
	res, err := c.Extract(context.Background(), userTurn, "s1")
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestParseCriteria(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
		err   bool
	}{
		{name: "array", input: `[{"address":"a"},{"address":"b"}]`, want: 2},
		{name: "object", input: `{"address":"a"}`, want: 1},
		{name: "json string", input: `"[{\"address\":\"a\"}]"`, want: 1},
		{name: "fenced", input: "```JSON\n{\"address\":\"a\"}\n```", want: 1},
		{name: "non objects dropped", input: `[1, "x", {"address":"a"}]`, want: 1},
		{name: "scalar", input: `42`, want: 0},
		{name: "garbage", input: `sure! here you go`, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCriteria(tt.input)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, tt.want)
		})
	}
}

func TestReviewQueries_Local(t *testing.T) {
	model := &fakeCompleter{text: `{"needs_reviews": true, "review_queries": [{"dish":"ramen","keywords":["brodo"],"intent":"quality"}, "junk"]}`}

	r := NewReviewQueries(extractionConfig(t, ModeLocal, ""), model)
	intent, err := r.Extract(context.Background(), userTurn, "s1")
	require.NoError(t, err)
	require.True(t, intent.NeedsReviews)
	require.Equal(t, []models.ReviewQuery{{Dish: "ramen", Keywords: []string{"brodo"}, Intent: "quality"}}, intent.ReviewQueries)

	opts := model.calls[0]
	require.Equal(t, 1.0, opts.TopP)
	require.Equal(t, 512, opts.MaxTokens)
}

func TestReviewQueries_MissingKeyFallsBackToRemote(t *testing.T) {
	model := &fakeCompleter{text: `{"review_queries": []}`}
	remote := newRemote(t, http.StatusOK, `{"messages":["{\"needs_reviews\": true, \"review_queries\": []}"]}`)

	r := NewReviewQueries(extractionConfig(t, ModeLocal, remote.srv.URL), model)
	intent, err := r.Extract(context.Background(), userTurn, "s1")
	require.NoError(t, err)
	require.True(t, intent.NeedsReviews)
	hits, _, _ := remote.seen()
	require.Equal(t, 1, hits)
}

func TestReviewQueries_RemoteRejectsNonStringMessage(t *testing.T) {
	remote := newRemote(t, http.StatusOK, `{"messages":[{"needs_reviews": true}]}`)

	r := NewReviewQueries(extractionConfig(t, ModeRemote, remote.srv.URL), &fakeCompleter{})
	intent, err := r.Extract(context.Background(), userTurn, "s1")
	require.ErrorIs(t, err, ErrNoResult)
	require.False(t, intent.NeedsReviews)
	require.Empty(t, intent.ReviewQueries)
}

func TestParseIntent(t *testing.T) {
	intent, err := ParseIntent("```json\n{\"needs_reviews\": \"true\"}\n```")
	require.NoError(t, err)
	require.True(t, intent.NeedsReviews)

	_, err = ParseIntent(`[{"needs_reviews": true}]`)
	require.Error(t, err)

	_, err = ParseIntent(`{}`)
	require.Error(t, err)
}
