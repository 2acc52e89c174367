package httpclient

import (
	"net"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	client := New(30 * time.Second)

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://api.hubapi.com/crm/v3/objects/deals", false},
		{"valid http", "http://api.example.com/path", false},
		{"ftp scheme", "ftp://api.example.com/file", true},
		{"localhost", "http://localhost:8080/", true},
		{"loopback ip", "http://127.0.0.1/", true},
		{"private ip", "http://192.168.1.5/", true},
		{"userinfo injection", "http://evil.com@api.hubapi.com/", true},
		{"missing hostname", "https:///path", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURLAllowsLoopbackWhenDisabled(t *testing.T) {
	block := false
	client := NewWithOptions(5*time.Second, Options{BlockPrivateIP: &block})

	if _, err := client.ValidateURL("http://127.0.0.1:9900/crm/v3/objects/deals"); err != nil {
		t.Errorf("loopback should be allowed with blocking disabled: %v", err)
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.0.0.1", "172.16.0.1", "192.168.0.1", "127.0.0.1", "169.254.1.1", "::1"}
	public := []string{"8.8.8.8", "104.18.0.1", "2600:1901::1"}

	for _, s := range private {
		if !isPrivateIP(net.ParseIP(s)) {
			t.Errorf("expected %s to be private", s)
		}
	}
	for _, s := range public {
		if isPrivateIP(net.ParseIP(s)) {
			t.Errorf("expected %s to be public", s)
		}
	}
}
