package bridge

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/EthanShoeDev/fressh/internal/fakesshd"
)

func TestConnectAndStartShellOverHTTP(t *testing.T) {
	srv, err := fakesshd.New("tester", "secret")
	if err != nil {
		t.Fatalf("fakesshd.New: %v", err)
	}
	srv.Start()
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Addr)
	if err != nil {
		t.Fatalf("net.SplitHostPort: %v", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	router := NewRouter(NewRegistry())
	ts := httptest.NewServer(router)
	defer ts.Close()

	connectBody, _ := json.Marshal(ConnectRequest{
		Host:     host,
		Port:     uint16(port),
		Username: "tester",
		Password: "secret",
	})
	resp, err := http.Post(ts.URL+"/connections", "application/json", bytes.NewReader(connectBody))
	if err != nil {
		t.Fatalf("POST /connections: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 Created, got %d", resp.StatusCode)
	}

	var created connectionView
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode connect response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a non-empty connection id")
	}

	shellResp, err := http.Post(ts.URL+"/connections/"+created.ID+"/shells", "application/json", nil)
	if err != nil {
		t.Fatalf("POST .../shells: %v", err)
	}
	defer shellResp.Body.Close()
	if shellResp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 Created starting shell, got %d", shellResp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/connections/"+created.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /connections/%s: %v", created.ID, err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 No Content on disconnect, got %d", delResp.StatusCode)
	}
}
