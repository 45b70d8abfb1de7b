package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// End-to-end smoke against a running API: a shelter posts a 100 kg request,
// a donor fulfills it in two installments and the request must end Fulfilled
// with zero remaining.
func main() {
	base := os.Getenv("RELIVE_API_ADDR")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 5 * time.Second}
	suffix := rand.Int()

	shelterTok := register(client, base, map[string]any{
		"name":     "Smoke Shelter",
		"email":    fmt.Sprintf("smoke-shelter-%d@example.org", suffix),
		"password": "smoke-password",
		"role":     "shelter",
	})
	donorTok := register(client, base, map[string]any{
		"name":     "Smoke Donor",
		"email":    fmt.Sprintf("smoke-donor-%d@example.org", suffix),
		"password": "smoke-password",
		"role":     "donor",
	})

	var created struct {
		ID string `json:"request_id"`
	}
	do(client, http.MethodPost, base+"/api/requests", shelterTok, map[string]any{
		"request_type": "Rice",
		"quantity":     100,
		"unit":         "kg",
	}, http.StatusCreated, &created)
	if created.ID == "" {
		log.Fatal("create request: empty id")
	}

	var first struct {
		RequestStatus string  `json:"requestStatus"`
		Remaining     float64 `json:"remainingQuantity"`
	}
	do(client, http.MethodPost, base+"/api/requests/"+created.ID+"/fulfill", donorTok, map[string]any{
		"foodType":       "Rice",
		"quantity":       60,
		"unit":           "kg",
		"pickupLocation": "Warehouse 4",
	}, http.StatusCreated, &first)
	if first.RequestStatus != "Matched" || first.Remaining != 40 {
		log.Fatalf("after first donation: status=%s remaining=%v", first.RequestStatus, first.Remaining)
	}

	var second struct {
		RequestStatus string  `json:"requestStatus"`
		Remaining     float64 `json:"remainingQuantity"`
	}
	do(client, http.MethodPost, base+"/api/requests/"+created.ID+"/fulfill", donorTok, map[string]any{
		"foodType":       "Rice",
		"quantity":       40,
		"unit":           "kg",
		"pickupLocation": "Warehouse 4",
	}, http.StatusCreated, &second)
	if second.RequestStatus != "Fulfilled" || second.Remaining != 0 {
		log.Fatalf("after second donation: status=%s remaining=%v", second.RequestStatus, second.Remaining)
	}

	// A third donation against a fulfilled request must be rejected.
	do(client, http.MethodPost, base+"/api/requests/"+created.ID+"/fulfill", donorTok, map[string]any{
		"foodType":       "Rice",
		"quantity":       1,
		"unit":           "kg",
		"pickupLocation": "Warehouse 4",
	}, http.StatusBadRequest, nil)

	fmt.Printf("✅ relive smoke test passed: request=%s\n", created.ID)
}

func register(client *http.Client, base string, body map[string]any) string {
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	do(client, http.MethodPost, base+"/api/auth/register", "", body, http.StatusCreated, &resp)
	if resp.AccessToken == "" {
		log.Fatalf("register %v: empty access token", body["email"])
	}
	return resp.AccessToken
}

func do(client *http.Client, method, url, token string, body map[string]any, wantStatus int, out any) {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			log.Fatalf("encode body for %s: %v", url, err)
		}
	}
	req, err := http.NewRequest(method, url, &payload)
	if err != nil {
		log.Fatalf("build request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode response from %s: %v", url, err)
		}
	}
}
