package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/MohamedBiize/DocAI/internal/vector"
)

type MockCounter struct{ mock.Mock }

func (m *MockCounter) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockChunks struct{ mock.Mock }

func (m *MockChunks) Count(ctx context.Context, filter vector.Filter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func TestHandler_GetStats_Table(t *testing.T) {
	docFilter := vector.Filter{"source_type": "document"}
	codeFilter := vector.Filter{"source_type": "code"}

	tests := []struct {
		name       string
		setupMocks func(d, p, j *MockCounter, c *MockChunks)
		wantStatus int
		wantError  bool
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			setupMocks: func(d, p, j *MockCounter, c *MockChunks) {
				d.On("Count", mock.Anything).Return(10, nil)
				p.On("Count", mock.Anything).Return(2, nil)
				j.On("Count", mock.Anything).Return(5, nil)
				c.On("Count", mock.Anything, vector.Filter(nil)).Return(100, nil)
				c.On("Count", mock.Anything, docFilter).Return(70, nil)
				c.On("Count", mock.Anything, codeFilter).Return(30, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 10, data["documents"])
				assert.EqualValues(t, 2, data["projects"])
				assert.EqualValues(t, 5, data["failed_jobs"])
				assert.EqualValues(t, 100, data["chunks"])
				assert.EqualValues(t, 70, data["document_chunks"])
				assert.EqualValues(t, 30, data["code_chunks"])
			},
		},
		{
			name: "Document Repo Error",
			setupMocks: func(d, p, j *MockCounter, c *MockChunks) {
				d.On("Count", mock.Anything).Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  true,
		},
		{
			name: "Job Repo Error",
			setupMocks: func(d, p, j *MockCounter, c *MockChunks) {
				d.On("Count", mock.Anything).Return(10, nil)
				p.On("Count", mock.Anything).Return(2, nil)
				j.On("Count", mock.Anything).Return(0, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  true,
		},
		{
			name: "Vector Store Error",
			setupMocks: func(d, p, j *MockCounter, c *MockChunks) {
				d.On("Count", mock.Anything).Return(10, nil)
				p.On("Count", mock.Anything).Return(2, nil)
				j.On("Count", mock.Anything).Return(5, nil)
				c.On("Count", mock.Anything, vector.Filter(nil)).Return(0, errors.New("weaviate error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, p, j, c := new(MockCounter), new(MockCounter), new(MockCounter), new(MockChunks)
			tt.setupMocks(d, p, j, c)

			h := NewHandler(d, p, j, c)
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			w := httptest.NewRecorder()

			h.GetStats(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]interface{}
			err := json.Unmarshal(w.Body.Bytes(), &body)
			assert.NoError(t, err)

			if tt.wantError {
				assert.Contains(t, body, "error")
			} else if tt.checkBody != nil {
				tt.checkBody(t, body)
			}
			d.AssertExpectations(t)
			j.AssertExpectations(t)
			c.AssertExpectations(t)
		})
	}
}
