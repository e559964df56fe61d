//go:build e2e
// +build e2e

package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/suite"

	"github.com/ammerola/stockroom/internal/bootstrap"
	"github.com/ammerola/stockroom/internal/handlers"
	"github.com/ammerola/stockroom/internal/handlers/middleware"
	"github.com/ammerola/stockroom/internal/pkg/config"
	"github.com/ammerola/stockroom/internal/workers"
	"github.com/ammerola/stockroom/test/helpers"
)

// capturingEnqueuer stands in for the queue; the suite runs captured tasks
// through the worker's processor itself.
type capturingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (c *capturingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), State: asynq.TaskStatePending}, nil
}

func (c *capturingEnqueuer) drain() []*asynq.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks := c.tasks
	c.tasks = nil
	return tasks
}

type InventoryE2ESuite struct {
	suite.Suite
	cfg      *config.Config
	deps     *bootstrap.Dependencies
	queue    *capturingEnqueuer
	importer *workers.ExcelProcessor
	server   *httptest.Server
	client   *http.Client
	baseURL  string
}

func (s *InventoryE2ESuite) SetupTest() {
	s.cfg = helpers.LoadTestConfig(s.T())
	s.cfg.Inventory.MaxConflictRetries = 20

	deps, err := bootstrap.Open(context.Background(), s.cfg, helpers.TestLogger())
	s.Require().NoError(err)
	s.deps = deps

	s.queue = &capturingEnqueuer{}
	s.server = s.startTestServer()
	s.client = &http.Client{Timeout: 10 * time.Second}
	s.baseURL = s.server.URL + handlers.APIPrefix
}

func (s *InventoryE2ESuite) TearDownTest() {
	s.server.Close()
	s.deps.Close()
}

func (s *InventoryE2ESuite) TestAddRemoveWorkflow() {
	// 1. First add creates the item
	resp := s.makeRequest("POST", "/items", map[string]string{"id": "apple"})
	s.Equal(http.StatusCreated, resp.StatusCode)
	item := s.decodeItem(resp)
	s.Equal(1, item.Quantity)
	s.True(item.Exists)

	// 2. Second add increments
	resp = s.makeRequest("POST", "/items", map[string]string{"id": "apple"})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(2, s.decodeItem(resp).Quantity)

	resp = s.makeRequest("POST", "/items/pineapple/increment", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1, s.decodeItem(resp).Quantity)

	// 3. Filter is a case-insensitive substring match
	list := s.listItems("APP")
	s.Equal(2, list.Count)

	list = s.listItems("pine")
	s.Require().Equal(1, list.Count)
	s.Equal("pineapple", list.Items[0].ID)

	// 4. Remove down to zero
	resp = s.makeRequest("POST", "/items/apple/decrement", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	item = s.decodeItem(resp)
	s.Equal(1, item.Quantity)
	s.True(item.Exists)

	resp = s.makeRequest("POST", "/items/apple/decrement", nil)
	item = s.decodeItem(resp)
	s.Equal(0, item.Quantity)
	s.False(item.Exists)

	// 5. Removing an absent item is a no-op
	resp = s.makeRequest("POST", "/items/apple/decrement", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.False(s.decodeItem(resp).Exists)

	list = s.listItems("")
	s.Require().Equal(1, list.Count)
	s.Equal("pineapple", list.Items[0].ID)
}

func (s *InventoryE2ESuite) TestAssetLifecycle() {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	s.Require().NoError(writer.WriteField("id", "apple"))
	part, err := writer.CreateFormFile("asset", "apple.txt")
	s.Require().NoError(err)
	_, err = part.Write([]byte("a picture of an apple"))
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	req, err := http.NewRequest("POST", s.baseURL+"/items", body)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	s.Equal(http.StatusCreated, resp.StatusCode)
	item := s.decodeItem(resp)
	s.Require().NotEmpty(item.AssetRef)

	ref, err := url.Parse(item.AssetRef)
	s.Require().NoError(err)
	assetURL := s.server.URL + ref.Path

	// The ref is retrievable through the asset route
	resp, err = s.client.Get(assetURL)
	s.Require().NoError(err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("a picture of an apple", string(data))

	// Increments keep the asset from creation
	resp = s.makeRequest("POST", "/items/apple/increment", nil)
	s.Equal(item.AssetRef, s.decodeItem(resp).AssetRef)

	s.makeRequest("POST", "/items/apple/decrement", nil).Body.Close()
	resp = s.makeRequest("POST", "/items/apple/decrement", nil)
	s.False(s.decodeItem(resp).Exists)

	// Removing the last unit deletes the asset
	s.Eventually(func() bool {
		resp, err := s.client.Get(assetURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 20*time.Millisecond)
}

func (s *InventoryE2ESuite) TestExcelImportAndExport() {
	workbook, err := os.ReadFile(helpers.CreateTestWorkbook(s.T(), [][]string{
		{"id", "quantity"},
		{"apple", "3"},
		{"pear", ""},
		{"plum", "-1"},
	}))
	s.Require().NoError(err)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "stock.xlsx")
	s.Require().NoError(err)
	_, err = part.Write(workbook)
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	req, err := http.NewRequest("POST", s.baseURL+"/import/excel", body)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	s.Equal(http.StatusAccepted, resp.StatusCode)

	var job handlers.ImportJobResponse
	s.decodeResponse(resp, &job)
	s.NotEmpty(job.JobID)

	// Run the queued task the way the worker would
	tasks := s.queue.drain()
	s.Require().Len(tasks, 1)
	err = s.importer.ProcessImport(context.Background(), tasks[0])
	s.Require().Error(err, "the invalid plum row fails the job")
	s.ErrorIs(err, asynq.SkipRetry)

	list := s.listItems("")
	s.Require().Equal(2, list.Count)
	quantities := map[string]int{}
	for _, it := range list.Items {
		quantities[it.ID] = it.Quantity
	}
	s.Equal(map[string]int{"apple": 3, "pear": 1}, quantities)

	// JSON export reflects the imported stock
	resp = s.makeRequest("GET", "/items/export?format=json&q=a", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	var export handlers.JSONExportResponse
	s.decodeResponse(resp, &export)
	s.Equal(2, export.Metadata.TotalItems)
	s.Equal(4, export.Metadata.TotalUnits)

	// Spreadsheet export can be read back by the importer
	resp = s.makeRequest("GET", "/items/export", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	s.Require().NoError(err)

	rows, invalid, err := workers.ParseImportWorkbook(data)
	s.Require().NoError(err)
	s.Empty(invalid)
	s.Len(rows, 2)
}

func (s *InventoryE2ESuite) TestConcurrentAdds() {
	const adders = 10

	var wg sync.WaitGroup
	for i := 0; i < adders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := s.makeRequest("POST", "/items/counter/increment", nil)
			resp.Body.Close()
			s.Equal(http.StatusOK, resp.StatusCode)
		}()
	}
	wg.Wait()

	list := s.listItems("counter")
	s.Require().Equal(1, list.Count)
	s.Equal(adders, list.Items[0].Quantity)
}

func (s *InventoryE2ESuite) TestValidationAndHeaders() {
	resp := s.makeRequest("POST", "/items", map[string]string{"id": ""})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.NotEmpty(resp.Header.Get(middleware.RequestIDHeader))

	var errResp handlers.ErrorResponse
	s.decodeResponse(resp, &errResp)
	s.Contains(errResp.Error, "invalid item id")
	s.NotEmpty(errResp.RequestID)

	resp = s.makeRequest("GET", "/items/export?format=pdf", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Ids must fit one path segment of the item routes.
	for _, id := range []string{"boxes/small", ".", ".."} {
		resp = s.makeRequest("POST", "/items", map[string]string{"id": id})
		s.Equal(http.StatusBadRequest, resp.StatusCode, id)
		resp.Body.Close()
	}

	resp = s.makeRequest("POST", "/items", map[string]string{"id": "green apple"})
	s.Equal(http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = s.makeRequest("POST", "/items/"+url.PathEscape("green apple")+"/increment", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	item := s.decodeItem(resp)
	s.Equal("green apple", item.ID)
	s.Equal(2, item.Quantity)
}

func (s *InventoryE2ESuite) TestHealthCheck() {
	resp, err := s.client.Get(s.server.URL + "/health")
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)

	var health handlers.HealthStatus
	s.decodeResponse(resp, &health)
	s.Equal("healthy", health.Status)
	s.Contains(health.Services, "database")

	resp, err = s.client.Get(s.server.URL + "/ready")
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// Helper methods

func (s *InventoryE2ESuite) startTestServer() *httptest.Server {
	log := helpers.TestLogger()
	service := bootstrap.NewInventoryService(s.cfg, s.deps, log)
	s.importer = workers.NewExcelProcessor(service, log)

	router := &handlers.Router{
		Inventory:  handlers.NewInventoryHandler(service, int64(s.cfg.Inventory.MaxAssetSizeMB)<<20, log),
		Export:     handlers.NewExportHandler(service, log),
		Import:     handlers.NewImportHandler(s.queue, nil, log, int64(s.cfg.Inventory.ImportMaxSizeMB)<<20, s.cfg.Inventory.UploadDir),
		Health:     handlers.NewHealthHandler(s.deps.BaseRecords, nil, nil, "e2e", "test", log),
		Assets:     handlers.NewAssetHandler(s.deps.LocalAssets.Root(), log),
		AssetsPath: s.deps.LocalAssets.URLPath(),
	}

	mux := http.NewServeMux()
	router.Register(mux)

	handler := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(s.cfg.Security.AllowedOrigins),
		middleware.Compression,
		middleware.Timeout(s.cfg.Server.RequestTimeout),
	)

	return httptest.NewServer(handler)
}

func (s *InventoryE2ESuite) makeRequest(method, path string, body interface{}) *http.Response {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		s.NoError(err)
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.baseURL+path, reqBody)
	s.NoError(err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)

	return resp
}

func (s *InventoryE2ESuite) listItems(query string) handlers.ListResponse {
	resp := s.makeRequest("GET", fmt.Sprintf("/items?q=%s", url.QueryEscape(query)), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var list handlers.ListResponse
	s.decodeResponse(resp, &list)
	return list
}

func (s *InventoryE2ESuite) decodeItem(resp *http.Response) handlers.ItemResponse {
	var item handlers.ItemResponse
	s.decodeResponse(resp, &item)
	return item
}

func (s *InventoryE2ESuite) decodeResponse(resp *http.Response, v interface{}) {
	defer resp.Body.Close()
	err := json.NewDecoder(resp.Body).Decode(v)
	s.NoError(err)
}

func TestInventoryE2ESuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	suite.Run(t, new(InventoryE2ESuite))
}
