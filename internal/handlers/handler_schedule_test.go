package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/dto"
	"github.com/SscSPs/mma_recurring/internal/handlers"
	"github.com/SscSPs/mma_recurring/internal/middleware"
	"github.com/SscSPs/mma_recurring/internal/utils"
)

// --- Mock ScheduleService ---
type MockScheduleService struct {
	mock.Mock
}

func (m *MockScheduleService) scheduleResult(args mock.Arguments) (*domain.Schedule, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Schedule), args.Error(1)
}

func (m *MockScheduleService) GetSchedule(ctx context.Context, householdID string, scheduleID string) (*domain.Schedule, error) {
	return m.scheduleResult(m.Called(ctx, householdID, scheduleID))
}
func (m *MockScheduleService) ListSchedules(ctx context.Context, householdID string, params dto.ListSchedulesParams) (*dto.ListSchedulesResponse, error) {
	args := m.Called(ctx, householdID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListSchedulesResponse), args.Error(1)
}
func (m *MockScheduleService) PreviewOccurrences(ctx context.Context, householdID string, scheduleID string, count int) ([]civil.Date, error) {
	args := m.Called(ctx, householdID, scheduleID, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]civil.Date), args.Error(1)
}
func (m *MockScheduleService) ListOccurrences(ctx context.Context, householdID string, scheduleID string, limit int) ([]domain.Occurrence, error) {
	args := m.Called(ctx, householdID, scheduleID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Occurrence), args.Error(1)
}
func (m *MockScheduleService) CreateSchedule(ctx context.Context, householdID string, req dto.CreateScheduleRequest, userID string) (*domain.Schedule, error) {
	return m.scheduleResult(m.Called(ctx, householdID, req, userID))
}
func (m *MockScheduleService) UpdateSchedule(ctx context.Context, householdID string, scheduleID string, req dto.UpdateScheduleRequest, userID string) (*domain.Schedule, error) {
	return m.scheduleResult(m.Called(ctx, householdID, scheduleID, req, userID))
}
func (m *MockScheduleService) DeleteSchedule(ctx context.Context, householdID string, scheduleID string, userID string) error {
	return m.Called(ctx, householdID, scheduleID, userID).Error(0)
}
func (m *MockScheduleService) SetActive(ctx context.Context, householdID string, scheduleID string, active bool, userID string) (*domain.Schedule, error) {
	return m.scheduleResult(m.Called(ctx, householdID, scheduleID, active, userID))
}
func (m *MockScheduleService) SkipOccurrence(ctx context.Context, householdID string, scheduleID string, userID string) (*domain.Schedule, error) {
	return m.scheduleResult(m.Called(ctx, householdID, scheduleID, userID))
}
func (m *MockScheduleService) MaterializeNow(ctx context.Context, householdID string, scheduleID string, userID string) (*portssvc.MaterializeResult, error) {
	args := m.Called(ctx, householdID, scheduleID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*portssvc.MaterializeResult), args.Error(1)
}

// Ensure mock implements the interface
var _ portssvc.ScheduleSvcFacade = (*MockScheduleService)(nil)

// --- Mock Runner ---
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Tick(ctx context.Context, now time.Time) portssvc.TickReport {
	return m.Called(ctx, now).Get(0).(portssvc.TickReport)
}

var _ portssvc.RunnerSvc = (*MockRunner)(nil)

// --- Test Suite ---
type ScheduleHandlerTestSuite struct {
	suite.Suite
	router      *gin.Engine
	mockService *MockScheduleService
	mockRunner  *MockRunner
	jwtSecret   string
	now         time.Time
}

const (
	testIssuer    = "mma-test"
	testUserID    = "user-1"
	testHousehold = "hh-1"
	testAdminKey  = "admin-key"
)

func (suite *ScheduleHandlerTestSuite) generateTestToken(userID string, roles ...string) string {
	token, err := utils.GenerateJWT(userID, testHousehold, roles, suite.jwtSecret, time.Hour, testIssuer)
	if err != nil {
		suite.FailNow("Failed to sign test token", err.Error())
	}
	return token
}

func (suite *ScheduleHandlerTestSuite) SetupSuite() {
	suite.Require().NoError(handlers.RegisterValidators())
}

func (suite *ScheduleHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.jwtSecret = "test-secret-key-that-is-long-enough"
	suite.now = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	suite.mockService = new(MockScheduleService)
	suite.mockRunner = new(MockRunner)

	v1 := suite.router.Group("/api/v1",
		middleware.AdminKeyAuth(testAdminKey),
		middleware.AuthMiddleware(suite.jwtSecret, testIssuer),
	)
	handlers.RegisterScheduleRoutes(v1, suite.mockService)
	admin := v1.Group("", middleware.RequireRole(utils.RoleSchedulerAdmin))
	handlers.RegisterSchedulerRoutes(admin, suite.mockRunner, func() time.Time { return suite.now }, time.Minute)
}

func (suite *ScheduleHandlerTestSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *ScheduleHandlerTestSuite) authed(method, path string, body any) *httptest.ResponseRecorder {
	return suite.do(method, path, body, map[string]string{
		"Authorization": "Bearer " + suite.generateTestToken(testUserID),
	})
}

func sampleSchedule(id string) *domain.Schedule {
	next := civil.Date{Year: 2024, Month: time.March, Day: 31}
	day := 31
	return &domain.Schedule{
		ScheduleID:  id,
		HouseholdID: testHousehold,
		AccountID:   "acc-1",
		Template: domain.TransactionTemplate{
			Type:         domain.Expense,
			Amount:       decimal.NewFromInt(1200),
			CurrencyCode: "USD",
			Description:  "Rent",
		},
		Rule: domain.RecurrenceRule{
			Frequency:  domain.Monthly,
			DayOfMonth: &day,
			StartDate:  civil.Date{Year: 2024, Month: time.January, Day: 31},
		},
		NextOccurrence: &next,
		IsActive:       true,
		AutoCreate:     true,
		Status:         domain.StatusActive,
	}
}

// --- Test Cases ---

func (suite *ScheduleHandlerTestSuite) TestCreateSchedule_Success() {
	reqBody := dto.CreateScheduleRequest{
		AccountID:    "acc-1",
		Type:         "EXPENSE",
		Amount:       decimal.NewFromInt(1200),
		CurrencyCode: "USD",
		Description:  "Rent",
		Frequency:    "MONTHLY",
		DayOfMonth:   domain.IntPtr(31),
		StartDate:    civil.Date{Year: 2024, Month: time.January, Day: 31},
	}
	suite.mockService.On("CreateSchedule", mock.Anything, testHousehold, mock.AnythingOfType("dto.CreateScheduleRequest"), testUserID).
		Return(sampleSchedule("sch-1"), nil).Once()

	w := suite.authed(http.MethodPost, "/api/v1/schedules", reqBody)

	suite.Equal(http.StatusCreated, w.Code)
	var res dto.ScheduleResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	suite.Equal("sch-1", res.ScheduleID)
	suite.Equal("Monthly", res.FrequencyLabel)
	suite.Equal("2024-03-31", res.NextOccurrence.String())
	suite.mockService.AssertExpectations(suite.T())
}

func (suite *ScheduleHandlerTestSuite) TestCreateSchedule_BindingError() {
	reqBody := map[string]any{
		"accountID":    "acc-1",
		"type":         "EXPENSE",
		"currencyCode": "USD",
		"frequency":    "FORTNIGHTLY",
	}

	w := suite.authed(http.MethodPost, "/api/v1/schedules", reqBody)

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Contains(w.Body.String(), "Invalid request format")
	suite.mockService.AssertNotCalled(suite.T(), "CreateSchedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ScheduleHandlerTestSuite) TestCreateSchedule_ValidationErrorFromService() {
	reqBody := dto.CreateScheduleRequest{
		AccountID:    "acc-1",
		Type:         "EXPENSE",
		Amount:       decimal.NewFromInt(-5),
		CurrencyCode: "USD",
		Frequency:    "DAILY",
		StartDate:    civil.Date{Year: 2024, Month: time.January, Day: 1},
	}
	suite.mockService.On("CreateSchedule", mock.Anything, testHousehold, mock.Anything, testUserID).
		Return(nil, apperrors.NewValidationError("amount", "must be positive")).Once()

	w := suite.authed(http.MethodPost, "/api/v1/schedules", reqBody)

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Contains(w.Body.String(), `"field":"amount"`)
}

func (suite *ScheduleHandlerTestSuite) TestCreateSchedule_Unauthorized() {
	w := suite.do(http.MethodPost, "/api/v1/schedules", map[string]any{}, nil)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *ScheduleHandlerTestSuite) TestGetSchedule_Mapping() {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"found", nil, http.StatusOK},
		{"not found", apperrors.NewNotFoundError("schedule missing"), http.StatusNotFound},
		{"internal", fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.SetupTest()
			if tc.err == nil {
				suite.mockService.On("GetSchedule", mock.Anything, testHousehold, "sch-1").Return(sampleSchedule("sch-1"), nil).Once()
			} else {
				suite.mockService.On("GetSchedule", mock.Anything, testHousehold, "sch-1").Return(nil, tc.err).Once()
			}

			w := suite.authed(http.MethodGet, "/api/v1/schedules/sch-1", nil)

			suite.Equal(tc.wantStatus, w.Code)
			suite.mockService.AssertExpectations(suite.T())
		})
	}
}

func (suite *ScheduleHandlerTestSuite) TestListSchedules_DefaultsAndToken() {
	next := "tok"
	suite.mockService.On("ListSchedules", mock.Anything, testHousehold, dto.ListSchedulesParams{Limit: 20, NextToken: "abc", Status: "PAUSED"}).
		Return(&dto.ListSchedulesResponse{Schedules: []dto.ScheduleResponse{}, NextToken: &next}, nil).Once()

	w := suite.authed(http.MethodGet, "/api/v1/schedules?nextToken=abc&status=PAUSED", nil)

	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"nextToken":"tok"`)
	suite.mockService.AssertExpectations(suite.T())
}

func (suite *ScheduleHandlerTestSuite) TestListSchedules_BadStatus() {
	w := suite.authed(http.MethodGet, "/api/v1/schedules?status=DONE", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *ScheduleHandlerTestSuite) TestSetActive_CompletedConflict() {
	suite.mockService.On("SetActive", mock.Anything, testHousehold, "sch-1", true, testUserID).
		Return(nil, fmt.Errorf("schedule is completed: %w", apperrors.ErrInvalidTransition)).Once()

	w := suite.authed(http.MethodPut, "/api/v1/schedules/sch-1/active", map[string]bool{"isActive": true})

	suite.Equal(http.StatusConflict, w.Code)
	suite.mockService.AssertExpectations(suite.T())
}

func (suite *ScheduleHandlerTestSuite) TestSetActive_MissingFlag() {
	w := suite.authed(http.MethodPut, "/api/v1/schedules/sch-1/active", map[string]any{})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *ScheduleHandlerTestSuite) TestSkipAndDelete() {
	skipped := sampleSchedule("sch-1")
	skipped.NextOccurrence = &civil.Date{Year: 2024, Month: time.April, Day: 30}
	suite.mockService.On("SkipOccurrence", mock.Anything, testHousehold, "sch-1", testUserID).Return(skipped, nil).Once()
	suite.mockService.On("DeleteSchedule", mock.Anything, testHousehold, "sch-1", testUserID).Return(nil).Once()

	w := suite.authed(http.MethodPost, "/api/v1/schedules/sch-1/skip", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"nextOccurrence":"2024-04-30"`)

	w = suite.authed(http.MethodDelete, "/api/v1/schedules/sch-1", nil)
	suite.Equal(http.StatusNoContent, w.Code)
	suite.mockService.AssertExpectations(suite.T())
}

func (suite *ScheduleHandlerTestSuite) TestMaterializeNow() {
	s := sampleSchedule("sch-1")
	suite.mockService.On("MaterializeNow", mock.Anything, testHousehold, "sch-1", testUserID).Return(&portssvc.MaterializeResult{
		Outcome:     portssvc.OutcomeMaterialized,
		Schedule:    *s,
		Transaction: &domain.MaterializedTransaction{TransactionID: "txn-9"},
	}, nil).Once()

	w := suite.authed(http.MethodPost, "/api/v1/schedules/sch-1/materialize", nil)

	suite.Equal(http.StatusOK, w.Code)
	var res dto.MaterializeResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	suite.Equal("MATERIALIZED", res.Outcome)
	suite.Require().NotNil(res.TransactionID)
	suite.Equal("txn-9", *res.TransactionID)
}

func (suite *ScheduleHandlerTestSuite) TestMaterializeNow_DependencyFailure() {
	suite.mockService.On("MaterializeNow", mock.Anything, testHousehold, "sch-1", testUserID).
		Return(nil, apperrors.NewDependencyError("account", "acc-1")).Once()

	w := suite.authed(http.MethodPost, "/api/v1/schedules/sch-1/materialize", nil)

	suite.Equal(http.StatusFailedDependency, w.Code)
}

func (suite *ScheduleHandlerTestSuite) TestPreviewOccurrences() {
	dates := []civil.Date{
		{Year: 2024, Month: time.March, Day: 31},
		{Year: 2024, Month: time.April, Day: 30},
	}
	suite.mockService.On("PreviewOccurrences", mock.Anything, testHousehold, "sch-1", 2).Return(dates, nil).Once()

	w := suite.authed(http.MethodGet, "/api/v1/schedules/sch-1/preview?count=2", nil)

	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"scheduleID":"sch-1","occurrences":["2024-03-31","2024-04-30"]}`, w.Body.String())
}

func (suite *ScheduleHandlerTestSuite) TestPreviewOccurrences_CountOutOfRange() {
	w := suite.authed(http.MethodGet, "/api/v1/schedules/sch-1/preview?count=61", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.mockService.AssertNotCalled(suite.T(), "PreviewOccurrences", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ScheduleHandlerTestSuite) TestListOccurrences() {
	suite.mockService.On("ListOccurrences", mock.Anything, testHousehold, "sch-1", 50).Return([]domain.Occurrence{
		{ScheduleID: "sch-1", OccurrenceDate: civil.Date{Year: 2024, Month: time.February, Day: 29}, TransactionID: "txn-2"},
	}, nil).Once()

	w := suite.authed(http.MethodGet, "/api/v1/schedules/sch-1/occurrences", nil)

	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"occurrenceDate":"2024-02-29"`)
}

func (suite *ScheduleHandlerTestSuite) TestTick_RequiresAdmin() {
	w := suite.authed(http.MethodPost, "/api/v1/scheduler/tick", nil)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.mockRunner.AssertNotCalled(suite.T(), "Tick", mock.Anything, mock.Anything)
}

func (suite *ScheduleHandlerTestSuite) TestTick_WithAdminRoleToken() {
	suite.mockRunner.On("Tick", mock.Anything, suite.now).Return(portssvc.TickReport{
		Date:         civil.DateOf(suite.now),
		Materialized: 2,
		Failures:     []portssvc.TickFailure{},
	}).Once()

	w := suite.do(http.MethodPost, "/api/v1/scheduler/tick", nil, map[string]string{
		"Authorization": "Bearer " + suite.generateTestToken(testUserID, utils.RoleSchedulerAdmin),
	})

	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"materialized":2`)
	suite.mockRunner.AssertExpectations(suite.T())
}

func (suite *ScheduleHandlerTestSuite) TestTick_WithAdminKey() {
	suite.mockRunner.On("Tick", mock.Anything, suite.now).Return(portssvc.TickReport{Failures: []portssvc.TickFailure{}}).Once()

	w := suite.do(http.MethodPost, "/api/v1/scheduler/tick", nil, map[string]string{"x-api-key": testAdminKey})

	suite.Equal(http.StatusOK, w.Code)
	suite.mockRunner.AssertExpectations(suite.T())
}

// --- Run Test Suite ---
func TestScheduleHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(ScheduleHandlerTestSuite))
}
