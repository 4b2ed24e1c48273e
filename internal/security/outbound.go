// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 外部テキスト生成サービスへの送信に使うSSRF防止付きHTTPクライアントと、
// テンプレートから生成したHTML文書のサニタイズを扱う。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// OutboundGuard は外部サービス呼び出しの送信先を制限する。
// 生成エンドポイントは設定で差し替え可能なため、起動時の静的検証と
// 接続時（DNS解決後）の検証の両方を行う。
type OutboundGuard struct {
	schemes []string
	ports   []int
}

// NewOutboundGuard はhttpsかつ443番ポートのみを許可するOutboundGuardを生成する。
// portsを指定した場合は443の代わりにそれらを許可する。
func NewOutboundGuard(ports ...int) *OutboundGuard {
	if len(ports) == 0 {
		ports = []int{443}
	}
	return &OutboundGuard{
		schemes: []string{"https"},
		ports:   ports,
	}
}

// blockedNetworks は送信先として拒否するネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"127.0.0.0/8",    // ループバック
	"169.254.0.0/16", // リンクローカル（クラウドメタデータIPを含む）
	"0.0.0.0/8",
	"100.64.0.0/10", // CGNAT
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// NewSafeClient は送信先をsafeurlで検証するHTTPクライアントを生成する。
// プライベート、ループバック、リンクローカルの各アドレスへの接続は
// DNS解決後にDialerレベルで拒否される。
func (g *OutboundGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes...).
		SetAllowedPorts(g.ports...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateEndpoint はエンドポイントURLを静的に検証する。
// DNS解決は行わないため、実際の接続先の検証はNewSafeClient側で行われる。
func (g *OutboundGuard) ValidateEndpoint(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !slices.Contains(g.schemes, scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", parsed.Scheme, g.schemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	port := 443
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid port: %s", p)
		}
	}
	if !slices.Contains(g.ports, port) {
		return fmt.Errorf("disallowed port: %d (allowed: %v)", port, g.ports)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip)
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
