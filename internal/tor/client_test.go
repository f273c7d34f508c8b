package tor

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("valid proxy address creates client", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient("127.0.0.1:9050", 30*time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.ProxyAddress() != "127.0.0.1:9050" {
			t.Errorf("expected proxy address 127.0.0.1:9050, got %s", client.ProxyAddress())
		}
	})

	t.Run("invalid address returns error", func(t *testing.T) {
		t.Parallel()

		_, err := NewClient("127.0.0.1", 30*time.Second)
		if !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})
}

func TestIsValidProxyAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		address  string
		expected bool
	}{
		{name: "ipv4 with port", address: "127.0.0.1:9050", expected: true},
		{name: "hostname with port", address: "localhost:1080", expected: true},
		{name: "ipv6 with port", address: "[::1]:9050", expected: true},
		{name: "empty", address: "", expected: false},
		{name: "no port", address: "127.0.0.1", expected: false},
		{name: "empty host", address: ":9050", expected: false},
		{name: "empty port", address: "127.0.0.1:", expected: false},
		{name: "port zero", address: "127.0.0.1:0", expected: false},
		{name: "port too large", address: "127.0.0.1:65536", expected: false},
		{name: "non-numeric port", address: "127.0.0.1:abc", expected: false},
		{name: "too many colons", address: "a:b:c", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := isValidProxyAddress(tc.address); got != tc.expected {
				t.Errorf("isValidProxyAddress(%q) = %v, want %v", tc.address, got, tc.expected)
			}
		})
	}
}

func TestProxyStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status ProxyStatus
		str    string
		err    error
	}{
		{status: ProxyStatusOK, str: "OK", err: nil},
		{status: ProxyStatusWrongType, str: "wrong type (not SOCKS5)", err: ErrProxyNotSOCKS5},
		{status: ProxyStatusCannotConnect, str: "cannot connect", err: ErrProxyCannotConnect},
		{status: ProxyStatusTimeout, str: "timeout", err: ErrProxyTimeout},
	}

	for _, tc := range testCases {
		if tc.status.String() != tc.str {
			t.Errorf("expected %q, got %q", tc.str, tc.status.String())
		}
		if !errors.Is(tc.status.Error(), tc.err) {
			t.Errorf("expected error %v, got %v", tc.err, tc.status.Error())
		}
	}

	if ProxyStatus(99).String() != "unknown" {
		t.Error("expected unknown status string")
	}
	if ProxyStatus(99).Error() == nil {
		t.Error("expected error for unknown status")
	}
}

// startSOCKS5Relay starts a minimal SOCKS5 server without authentication
// that relays CONNECT requests for IPv4 and domain addresses.
func startSOCKS5Relay(t *testing.T) (string, *atomic.Int32) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start proxy: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	var connects atomic.Int32
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go relaySOCKS5(conn, &connects)
		}
	}()

	return listener.Addr().String(), &connects
}

func relaySOCKS5(conn net.Conn, connects *atomic.Int32) {
	defer conn.Close()

	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return
	}
	methods := make([]byte, greeting[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return
	}

	var host string
	switch header[3] {
	case 0x01:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 0x03:
		n := make([]byte, 1)
		if _, err := io.ReadFull(conn, n); err != nil {
			return
		}
		name := make([]byte, n[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	default:
		return
	}
	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return
	}
	port := binary.BigEndian.Uint16(portBuf)

	target, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(port)))) //nolint:noctx // test code
	if err != nil {
		_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return
	}
	defer target.Close()

	if _, err := conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}
	connects.Add(1)

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(target, conn)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(conn, target)
		done <- struct{}{}
	}()
	<-done
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	t.Run("requests go through the proxy", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("proxied"))
		}))
		defer server.Close()

		proxyAddr, connects := startSOCKS5Relay(t)
		client, err := NewClient(proxyAddr, 5*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		httpClient := client.NewHTTPClient()
		resp, err := httpClient.Get(server.URL) //nolint:noctx // test code
		if err != nil {
			t.Fatalf("request through proxy failed: %v", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}
		if string(body) != "proxied" {
			t.Errorf("unexpected body %q", body)
		}
		if connects.Load() == 0 {
			t.Error("expected the request to be relayed by the proxy")
		}
	})

	t.Run("client has timeout and no cookie jar", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient("127.0.0.1:9050", 42*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		httpClient := client.NewHTTPClient()
		if httpClient.Timeout != 42*time.Second {
			t.Errorf("expected timeout 42s, got %v", httpClient.Timeout)
		}
		if httpClient.Jar != nil {
			t.Error("expected no cookie jar")
		}
		transport, ok := httpClient.Transport.(*http.Transport)
		if !ok {
			t.Fatalf("expected *http.Transport, got %T", httpClient.Transport)
		}
		if transport.TLSClientConfig != nil && transport.TLSClientConfig.InsecureSkipVerify {
			t.Error("expected TLS verification to stay enabled")
		}
	})

	t.Run("unreachable proxy fails the request", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatal(err)
		}
		addr := listener.Addr().String()
		listener.Close()

		client, err := NewClient(addr, 2*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://a.example/", nil)
		if err != nil {
			t.Fatal(err)
		}
		if resp, err := client.NewHTTPClient().Do(req); err == nil {
			resp.Body.Close()
			t.Error("expected request to fail")
		}
	})
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	// mockServer accepts one connection and runs handle on it.
	mockServer := func(t *testing.T, handle func(net.Conn)) string {
		t.Helper()
		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatalf("failed to start mock server: %v", err)
		}
		t.Cleanup(func() { listener.Close() })

		go func() {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			handle(conn)
		}()
		return listener.Addr().String()
	}

	t.Run("returns CannotConnect for non-existent proxy", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatal(err)
		}
		addr := listener.Addr().String()
		listener.Close()

		client, err := NewClient(addr, 30*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		if status := client.CheckConnection(context.Background()); status != ProxyStatusCannotConnect {
			t.Errorf("expected ProxyStatusCannotConnect, got %v", status)
		}
	})

	t.Run("returns WrongType for non-SOCKS5 server", func(t *testing.T) {
		t.Parallel()

		addr := mockServer(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
		})

		client, err := NewClient(addr, 30*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		if status := client.CheckConnection(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})

	t.Run("returns WrongType for SOCKS5 requiring auth", func(t *testing.T) {
		t.Parallel()

		addr := mockServer(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0xFF})
		})

		client, err := NewClient(addr, 30*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		if status := client.CheckConnection(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})

	t.Run("returns OK for SOCKS5 proxy", func(t *testing.T) {
		t.Parallel()

		addr := mockServer(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0x00})
			connectBuf := make([]byte, 256)
			_, _ = conn.Read(connectBuf)
			// Host unreachable is still a valid SOCKS5 reply.
			_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		})

		client, err := NewClient(addr, 30*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		if status := client.CheckConnection(context.Background()); status != ProxyStatusOK {
			t.Errorf("expected ProxyStatusOK, got %v", status)
		}
	})

	t.Run("returns WrongType for wrong version in CONNECT response", func(t *testing.T) {
		t.Parallel()

		addr := mockServer(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0x00})
			connectBuf := make([]byte, 256)
			_, _ = conn.Read(connectBuf)
			_, _ = conn.Write([]byte{0x04, 0x00, 0x00, 0x01})
		})

		client, err := NewClient(addr, 30*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		if status := client.CheckConnection(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient("127.0.0.1:59998", 30*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		status := client.CheckConnection(ctx)
		if status != ProxyStatusCannotConnect && status != ProxyStatusTimeout {
			t.Errorf("expected ProxyStatusCannotConnect or ProxyStatusTimeout, got %v", status)
		}
	})
}
