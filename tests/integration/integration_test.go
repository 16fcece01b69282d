//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"
)

// staffKey matches CANTEEN_STAFF_KEY_HASHES in docker-compose.test.yml.
const staffKey = "integration-staff-key"

var (
	baseURL    string
	httpClient *http.Client
)

// Response types are declared locally so the suite stays black-box.

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type lineItem struct {
	ItemID         string   `json:"itemId"`
	Name           string   `json:"name"`
	Price          float64  `json:"price"`
	Quantity       int      `json:"quantity"`
	Customizations []string `json:"customizations,omitempty"`
}

type orderRequest struct {
	StudentID         string     `json:"studentId"`
	StudentName       string     `json:"studentName"`
	StudentEmail      string     `json:"studentEmail"`
	StudentRollNumber string     `json:"studentRollNumber"`
	Items             []lineItem `json:"items"`
	Total             float64    `json:"total"`
	PaymentMethod     string     `json:"paymentMethod"`
}

type orderResponse struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"studentId"`
	Items           []lineItem `json:"items"`
	Total           float64    `json:"total"`
	PaymentMethod   string     `json:"paymentMethod"`
	Status          string     `json:"status"`
	PreparationTime *int       `json:"preparationTime"`
	RejectionReason string     `json:"rejectionReason"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type staffOrderResponse struct {
	Order       orderResponse `json:"order"`
	NextActions []string      `json:"nextActions"`
}

type dashboardResponse struct {
	Summary struct {
		Pending   int `json:"pending"`
		Active    int `json:"active"`
		Completed int `json:"completed"`
		Rejected  int `json:"rejected"`
	} `json:"summary"`
	Notification *struct {
		Pending int `json:"pending"`
		New     int `json:"new"`
	} `json:"notification"`
	PendingOrders []orderResponse `json:"pendingOrders"`
	Revenue       *float64        `json:"revenue"`
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("docker-compose.test.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}

	// Start postgres + api and wait until the api reports ready.
	err = dc.
		WaitForService("api", wait.ForHTTP("/readyz").WithPort("8080/tcp")).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}

	api, err := dc.ServiceContainer(ctx, "api")
	if err != nil {
		log.Fatalf("api container: %v", err)
	}
	host, err := api.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := api.MappedPort(ctx, "8080/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	baseURL = fmt.Sprintf("http://%s:%s", host, port.Port())
	httpClient = &http.Client{Timeout: 10 * time.Second}
	log.Printf("API available at %s", baseURL)

	result := m.Run()

	// Stop the api first so its shutdown flush runs against a live database.
	stopTimeout := 30 * time.Second
	if err := api.Stop(ctx, &stopTimeout); err != nil {
		log.Printf("stop api container: %v", err)
	}
	if err := dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true)); err != nil {
		log.Printf("compose down: %v", err)
	}
	return result
}

// HTTP helpers.

func do(t *testing.T, method, path string, body any, header http.Header) *http.Response {
	t.Helper()

	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, r)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func doGet(t *testing.T, path string) *http.Response {
	t.Helper()
	return do(t, http.MethodGet, path, nil, nil)
}

func staff() http.Header {
	return http.Header{"api_key": []string{staffKey}}
}

func student(id string) http.Header {
	return http.Header{"X-Student-ID": []string{id}}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("expected %d, got %d (%q)", want, resp.StatusCode, e.Message)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}
