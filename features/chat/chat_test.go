package chat_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MohamedBiize/DocAI/features/chat"
	"github.com/MohamedBiize/DocAI/internal/retrieval"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, question string, filter vector.Filter) retrieval.Result {
	return m.Called(ctx, question, filter).Get(0).(retrieval.Result)
}

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) SaveExchange(ctx context.Context, e *chat.Exchange) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockRepo) SaveFeedback(ctx context.Context, f *chat.Feedback) error {
	return m.Called(ctx, f).Error(0)
}

var answered = retrieval.Result{
	Answer: "It adds two numbers.",
	Sources: []retrieval.SourceReference{
		{Text: "def add(a, b): return a + b", Score: 0.91},
	},
}

func TestService_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("stores exchange", func(t *testing.T) {
		a, repo := new(MockAnswerer), new(MockRepo)
		a.On("Answer", ctx, "what does add do?", vector.Filter(nil)).Return(answered)
		repo.On("SaveExchange", ctx, mock.MatchedBy(func(e *chat.Exchange) bool {
			return e.Answer == answered.Answer && len(e.Sources) == 1
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*chat.Exchange).ID = "q-1"
		}).Return(nil)

		reply := chat.NewService(a, repo).Ask(ctx, "what does add do?", nil)
		assert.Equal(t, "q-1", reply.QueryID)
		assert.Equal(t, answered.Answer, reply.Answer)
	})

	t.Run("history failure keeps answer", func(t *testing.T) {
		a, repo := new(MockAnswerer), new(MockRepo)
		a.On("Answer", ctx, "q", vector.Filter(nil)).Return(answered)
		repo.On("SaveExchange", ctx, mock.Anything).Return(errors.New("db down"))

		reply := chat.NewService(a, repo).Ask(ctx, "q", nil)
		assert.Empty(t, reply.QueryID)
		assert.Equal(t, answered.Answer, reply.Answer)
	})

	t.Run("blank question is not stored", func(t *testing.T) {
		a, repo := new(MockAnswerer), new(MockRepo)
		a.On("Answer", ctx, "  ", vector.Filter(nil)).
			Return(retrieval.Result{Answer: retrieval.NoQuestionAnswer, Sources: []retrieval.SourceReference{}})

		reply := chat.NewService(a, repo).Ask(ctx, "  ", nil)
		assert.Equal(t, retrieval.NoQuestionAnswer, reply.Answer)
		repo.AssertNotCalled(t, "SaveExchange", mock.Anything, mock.Anything)
	})
}

func TestCodeFilter(t *testing.T) {
	tests := []struct {
		name      string
		repoURL   string
		projectID string
		want      vector.Filter
	}{
		{"code only", "", "", vector.Filter{"source_type": "code"}},
		{"by repo", "https://github.com/acme/widgets", "", vector.Filter{"source_type": "code", "repo_url": "https://github.com/acme/widgets"}},
		{"by project", "", "proj-1", vector.Filter{"source_type": "code", "project_id": "proj-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chat.CodeFilter(tt.repoURL, tt.projectID))
		})
	}
}

func TestService_Feedback(t *testing.T) {
	ctx := context.Background()
	for _, rating := range []int{0, 6, -1} {
		err := chat.NewService(nil, new(MockRepo)).Feedback(ctx, &chat.Feedback{QueryID: "q-1", Rating: rating})
		assert.ErrorIs(t, err, chat.ErrInvalidRating)
	}
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		call       func(h *chat.Handler, w http.ResponseWriter, r *http.Request)
		body       string
		setup      func(a *MockAnswerer, repo *MockRepo)
		wantStatus int
		wantBody   string
	}{
		{
			name: "ask",
			call: (*chat.Handler).Ask,
			body: `{"question":"what does add do?","filter":{"source_type":"code"}}`,
			setup: func(a *MockAnswerer, repo *MockRepo) {
				a.On("Answer", mock.Anything, "what does add do?", vector.Filter{"source_type": "code"}).Return(answered)
				repo.On("SaveExchange", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
					args.Get(1).(*chat.Exchange).ID = "q-1"
				}).Return(nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"query_id":"q-1"`,
		},
		{
			name:       "ask malformed",
			call:       (*chat.Handler).Ask,
			body:       `{"question":`,
			setup:      func(a *MockAnswerer, repo *MockRepo) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   `"VALIDATION_ERROR"`,
		},
		{
			name: "code query",
			call: (*chat.Handler).CodeQuery,
			body: `{"question":"where is auth?","project_id":"proj-1"}`,
			setup: func(a *MockAnswerer, repo *MockRepo) {
				a.On("Answer", mock.Anything, "where is auth?", vector.Filter{"source_type": "code", "project_id": "proj-1"}).Return(answered)
				repo.On("SaveExchange", mock.Anything, mock.Anything).Return(nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"answer":"It adds two numbers."`,
		},
		{
			name: "feedback",
			call: (*chat.Handler).Feedback,
			body: `{"query_id":"q-1","rating":5,"comments":"spot on"}`,
			setup: func(a *MockAnswerer, repo *MockRepo) {
				repo.On("SaveFeedback", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
					args.Get(1).(*chat.Feedback).ID = "f-1"
				}).Return(nil)
			},
			wantStatus: http.StatusCreated,
			wantBody:   `"id":"f-1"`,
		},
		{
			name:       "feedback bad rating",
			call:       (*chat.Handler).Feedback,
			body:       `{"query_id":"q-1","rating":9}`,
			setup:      func(a *MockAnswerer, repo *MockRepo) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   `"VALIDATION_ERROR"`,
		},
		{
			name:       "feedback missing query",
			call:       (*chat.Handler).Feedback,
			body:       `{"rating":3}`,
			setup:      func(a *MockAnswerer, repo *MockRepo) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   `"query_id is required"`,
		},
		{
			name: "feedback unknown query",
			call: (*chat.Handler).Feedback,
			body: `{"query_id":"nope","rating":3}`,
			setup: func(a *MockAnswerer, repo *MockRepo) {
				repo.On("SaveFeedback", mock.Anything, mock.Anything).Return(chat.ErrUnknownQuery)
			},
			wantStatus: http.StatusNotFound,
			wantBody:   `"NOT_FOUND"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, repo := new(MockAnswerer), new(MockRepo)
			tt.setup(a, repo)
			h := chat.NewHandler(chat.NewService(a, repo))

			w := httptest.NewRecorder()
			tt.call(h, w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))

			require.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			a.AssertExpectations(t)
			repo.AssertExpectations(t)
		})
	}
}
