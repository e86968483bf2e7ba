// Package mocks holds testify mocks of the domain ports.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(m *mock.Mock, t testingT) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// ResumeRepository mocks domain.ResumeRepository.
type ResumeRepository struct{ mock.Mock }

// NewResumeRepository creates a mock that asserts its expectations on cleanup.
func NewResumeRepository(t testingT) *ResumeRepository {
	m := &ResumeRepository{}
	register(&m.Mock, t)
	return m
}

func (m *ResumeRepository) Create(ctx domain.Context, r domain.Resume) (string, error) {
	args := m.Called(ctx, r)
	return args.String(0), args.Error(1)
}

func (m *ResumeRepository) Get(ctx domain.Context, id string) (domain.Resume, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Resume), args.Error(1)
}

func (m *ResumeRepository) List(ctx domain.Context) ([]domain.Resume, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]domain.Resume)
	return v, args.Error(1)
}

func (m *ResumeRepository) Delete(ctx domain.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// EvaluationRepository mocks domain.EvaluationRepository.
type EvaluationRepository struct{ mock.Mock }

// NewEvaluationRepository creates a mock that asserts its expectations on cleanup.
func NewEvaluationRepository(t testingT) *EvaluationRepository {
	m := &EvaluationRepository{}
	register(&m.Mock, t)
	return m
}

func (m *EvaluationRepository) Create(ctx domain.Context, e domain.Evaluation) (string, error) {
	args := m.Called(ctx, e)
	return args.String(0), args.Error(1)
}

func (m *EvaluationRepository) ListByResume(ctx domain.Context, resumeID string) ([]domain.Evaluation, error) {
	args := m.Called(ctx, resumeID)
	v, _ := args.Get(0).([]domain.Evaluation)
	return v, args.Error(1)
}

func (m *EvaluationRepository) LatestByResumes(ctx domain.Context, resumeIDs []string) (map[string]domain.Evaluation, error) {
	args := m.Called(ctx, resumeIDs)
	v, _ := args.Get(0).(map[string]domain.Evaluation)
	return v, args.Error(1)
}

func (m *EvaluationRepository) DeleteByResume(ctx domain.Context, resumeID string) (int64, error) {
	args := m.Called(ctx, resumeID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *EvaluationRepository) Delete(ctx domain.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// BlobStore mocks domain.BlobStore.
type BlobStore struct{ mock.Mock }

// NewBlobStore creates a mock that asserts its expectations on cleanup.
func NewBlobStore(t testingT) *BlobStore {
	m := &BlobStore{}
	register(&m.Mock, t)
	return m
}

func (m *BlobStore) Put(ctx domain.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *BlobStore) Delete(ctx domain.Context, fileURL string) error {
	return m.Called(ctx, fileURL).Error(0)
}

// TextExtractor mocks domain.TextExtractor.
type TextExtractor struct{ mock.Mock }

// NewTextExtractor creates a mock that asserts its expectations on cleanup.
func NewTextExtractor(t testingT) *TextExtractor {
	m := &TextExtractor{}
	register(&m.Mock, t)
	return m
}

func (m *TextExtractor) Extract(ctx domain.Context, fileName string, data []byte) (string, error) {
	args := m.Called(ctx, fileName, data)
	return args.String(0), args.Error(1)
}

// EmbeddingProvider mocks domain.EmbeddingProvider.
type EmbeddingProvider struct{ mock.Mock }

// NewEmbeddingProvider creates a mock that asserts its expectations on cleanup.
func NewEmbeddingProvider(t testingT) *EmbeddingProvider {
	m := &EmbeddingProvider{}
	register(&m.Mock, t)
	return m
}

func (m *EmbeddingProvider) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	v, _ := args.Get(0).([][]float32)
	return v, args.Error(1)
}

// VectorStore mocks domain.VectorStore.
type VectorStore struct{ mock.Mock }

// NewVectorStore creates a mock that asserts its expectations on cleanup.
func NewVectorStore(t testingT) *VectorStore {
	m := &VectorStore{}
	register(&m.Mock, t)
	return m
}

func (m *VectorStore) Upsert(ctx domain.Context, points []domain.ChunkVector) error {
	return m.Called(ctx, points).Error(0)
}

func (m *VectorStore) Query(ctx domain.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.ChunkMatch, error) {
	args := m.Called(ctx, vector, topK, filter)
	v, _ := args.Get(0).([]domain.ChunkMatch)
	return v, args.Error(1)
}

func (m *VectorStore) DeleteByResume(ctx domain.Context, resumeID string) error {
	return m.Called(ctx, resumeID).Error(0)
}

func (m *VectorStore) DeleteAll(ctx domain.Context) error {
	return m.Called(ctx).Error(0)
}

// LLM mocks domain.LLM.
type LLM struct{ mock.Mock }

// NewLLM creates a mock that asserts its expectations on cleanup.
func NewLLM(t testingT) *LLM {
	m := &LLM{}
	register(&m.Mock, t)
	return m
}

func (m *LLM) Complete(ctx domain.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.ChatResponse), args.Error(1)
}

// EventPublisher mocks domain.EventPublisher.
type EventPublisher struct{ mock.Mock }

// NewEventPublisher creates a mock that asserts its expectations on cleanup.
func NewEventPublisher(t testingT) *EventPublisher {
	m := &EventPublisher{}
	register(&m.Mock, t)
	return m
}

func (m *EventPublisher) Publish(ctx domain.Context, ev domain.ResumeEvent) error {
	return m.Called(ctx, ev).Error(0)
}

var (
	_ domain.ResumeRepository     = (*ResumeRepository)(nil)
	_ domain.EvaluationRepository = (*EvaluationRepository)(nil)
	_ domain.BlobStore            = (*BlobStore)(nil)
	_ domain.TextExtractor        = (*TextExtractor)(nil)
	_ domain.EmbeddingProvider    = (*EmbeddingProvider)(nil)
	_ domain.VectorStore          = (*VectorStore)(nil)
	_ domain.LLM                  = (*LLM)(nil)
	_ domain.EventPublisher       = (*EventPublisher)(nil)
)
