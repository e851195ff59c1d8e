// Package ipchecker provides utilities for extracting and validating
// client IP addresses from HTTP requests. It supports checking whether
// a given IP falls within a trusted subnet.
package ipchecker

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/patric-chuzhbe/students/internal/apperror"
	"github.com/patric-chuzhbe/students/internal/logger"
)

// IPChecker is responsible for extracting a client's IP address from
// an HTTP request and validating whether it belongs to a trusted subnet.
type IPChecker struct {
	trustedSubnet *net.IPNet
	proxyHeaders  bool
}

type initOptions struct {
	proxyHeaders bool
}

// InitOption configures New.
type InitOption func(*initOptions)

// WithProxyHeaders makes GetClientIP honour the "X-Real-IP" and
// "X-Forwarded-For" headers. Enable it only behind a reverse proxy that
// overwrites both headers, otherwise any client can pick its own address.
func WithProxyHeaders(value bool) InitOption {
	return func(options *initOptions) {
		options.proxyHeaders = value
	}
}

// New creates a new IPChecker instance configured with a trusted subnet.
// If the input trustedSubnet is an empty string, the IPChecker will be
// initialized in a disabled state - so the IsTrustedSubnetEmpty will return true
//
// The trustedSubnet must be in CIDR notation (e.g., "192.168.1.0/24").
// Returns an error if the CIDR string cannot be parsed.
func New(trustedSubnet string, optionsProto ...InitOption) (*IPChecker, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if trustedSubnet == "" {
		return &IPChecker{
			trustedSubnet: nil,
			proxyHeaders:  options.proxyHeaders,
		}, nil
	}
	_, allowedNet, err := net.ParseCIDR(trustedSubnet)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `net.ParseCIDR()` calling: %w", err)
	}
	return &IPChecker{
		trustedSubnet: allowedNet,
		proxyHeaders:  options.proxyHeaders,
	}, nil
}

// Check verifies whether the given IP address belongs to the configured
// trusted subnet. If no trusted subnet is configured, it returns false.
func (checker *IPChecker) Check(clientIP net.IP) bool {
	return checker.trustedSubnet != nil && checker.trustedSubnet.Contains(clientIP)
}

// GetClientIP extracts the client's IP address from an HTTP request.
// By default only the request's RemoteAddr field is used. With
// WithProxyHeaders the "X-Real-IP" header and then the "X-Forwarded-For"
// header take precedence over RemoteAddr.
//
// Returns the parsed IP address or an error if extraction fails.
func (checker *IPChecker) GetClientIP(request *http.Request) (net.IP, error) {
	if checker.proxyHeaders {
		if ip := net.ParseIP(request.Header.Get("X-Real-IP")); ip != nil {
			return ip, nil
		}
		if xff := request.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			return net.ParseIP(strings.TrimSpace(ips[0])), nil
		}
	}
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/GetClientIP(): error while `net.SplitHostPort()` calling: %w", err)
	}
	return net.ParseIP(host), nil
}

// IsTrustedSubnetEmpty returns true if the IPChecker was initialized
// without a trusted subnet.
func (checker *IPChecker) IsTrustedSubnetEmpty() bool {
	return checker.trustedSubnet == nil
}

// TrustedSubnetOnly is an HTTP middleware that rejects every request whose
// client IP is outside the trusted subnet with 403. With no subnet configured
// every request is rejected.
func (checker *IPChecker) TrustedSubnetOnly(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		clientIP, err := checker.GetClientIP(request)
		if err != nil || clientIP == nil || !checker.Check(clientIP) {
			logger.Log.Infow(
				"request from an untrusted address",
				"uri", request.RequestURI,
				"remote_addr", request.RemoteAddr,
			)
			apperror.New("", "Access is allowed from the trusted subnet only", apperror.TypeAuthorization).
				Write(response)

			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
