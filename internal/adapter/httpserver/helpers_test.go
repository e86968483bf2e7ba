package httpserver_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/domain/mocks"
	"github.com/fairyhunter13/resume-evaluator/internal/service/chunker"
	"github.com/fairyhunter13/resume-evaluator/internal/service/criteria"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

const (
	idA = "aaaaaaaa-0000-4000-8000-000000000001"
	idB = "bbbbbbbb-0000-4000-8000-000000000002"
)

type wordCounter struct{}

func (wordCounter) Count(s string) int { return len(strings.Fields(s)) }

type fixture struct {
	resumes  *mocks.ResumeRepository
	evals    *mocks.EvaluationRepository
	blobs    *mocks.BlobStore
	extract  *mocks.TextExtractor
	vectors  *mocks.VectorStore
	events   *mocks.EventPublisher
	llm      *mocks.LLM
	provider *mocks.EmbeddingProvider
}

func newServer(t *testing.T, checks ...httpserver.ReadinessCheck) (*httpserver.Server, *fixture) {
	t.Helper()
	f := &fixture{
		resumes:  mocks.NewResumeRepository(t),
		evals:    mocks.NewEvaluationRepository(t),
		blobs:    mocks.NewBlobStore(t),
		extract:  mocks.NewTextExtractor(t),
		vectors:  mocks.NewVectorStore(t),
		events:   mocks.NewEventPublisher(t),
		llm:      mocks.NewLLM(t),
		provider: mocks.NewEmbeddingProvider(t),
	}
	cfg := config.Config{MaxUploadMB: 1, ChunkMaxTokens: 100}
	embedder := ai.NewEmbedder(f.provider)
	ix := usecase.NewIndexer(chunker.New(wordCounter{}, cfg.ChunkMaxTokens, 0), embedder, f.vectors)
	evaluator := usecase.NewEvaluator(f.llm)
	bulk := usecase.NewBulkEvaluator(f.resumes, f.evals, evaluator, 0)
	srv := httpserver.NewServer(cfg,
		usecase.NewResumeService(f.resumes, f.evals, f.blobs, f.extract, ix, f.events, cfg.MaxUploadMB*1024*1024),
		usecase.NewEvaluationService(f.resumes, f.evals, evaluator),
		bulk,
		usecase.NewChatService(f.llm, criteria.New(config.DefaultVocabulary()), embedder, f.vectors, f.resumes, bulk, 20),
		usecase.NewCleanupService(f.vectors, f.blobs),
		checks...,
	)
	return srv, f
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, field, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/uploadResume", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

// sseEvents parses `data: <json>` frames.
func sseEvents(t *testing.T, body string) []usecase.Event {
	t.Helper()
	var out []usecase.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), line)
		var ev usecase.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		out = append(out, ev)
	}
	return out
}

func eventTypes(evs []usecase.Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

func expectEmbeddings(f *fixture) {
	f.provider.On("Embed", mock.Anything, mock.Anything).Return([][]float32{{0.1, 0.2}}, nil).Maybe()
}
