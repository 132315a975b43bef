// Package rulefile implements the INI-format rule-file loader. This is
// an external collaborator relative to the core — the core only
// consumes a built *ruletable.RuleTable — but a reference loader is
// included because something concrete has to produce one for the CLI
// binary.
//
// Built on the standard library's bufio/strings — see DESIGN.md for
// why no third-party config-format parser is used here.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package rulefile

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/momentics/upe/ruletable"
)

// IfindexResolver maps an interface name to its OS ifindex. Defaults
// to net.InterfaceByName when nil.
type IfindexResolver func(name string) (int, error)

func defaultResolver(name string) (int, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return 0, err
	}
	return iface.Index, nil
}

// Load reads an INI-format rule file and returns a frozen
// RuleTable built by applying each [rule] section via
// ruletable.RuleTable.Add. A missing out_iface on a fwd rule, or an
// out_iface that fails to resolve, is a load error.
func Load(r io.Reader, resolve IfindexResolver) (*ruletable.RuleTable, error) {
	if resolve == nil {
		resolve = defaultResolver
	}

	table := ruletable.NewRuleTable()
	sc := bufio.NewScanner(r)

	var cur map[string]string
	flush := func() error {
		if cur == nil {
			return nil
		}
		rule, err := buildRule(cur, resolve)
		if err != nil {
			return err
		}
		table.Add(rule)
		return nil
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section := strings.TrimSpace(line[1 : len(line)-1])
			if section != "rule" {
				return nil, fmt.Errorf("rulefile: line %d: unknown section %q", lineNo, section)
			}
			if err := flush(); err != nil {
				return nil, fmt.Errorf("rulefile: line %d: %w", lineNo, err)
			}
			cur = make(map[string]string)
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("rulefile: line %d: expected key=value", lineNo)
		}
		if cur == nil {
			return nil, fmt.Errorf("rulefile: line %d: key outside any [rule] section", lineNo)
		}
		cur[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("rulefile: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return table, nil
}

func buildRule(kv map[string]string, resolve IfindexResolver) (ruletable.Rule, error) {
	var r ruletable.Rule

	priority, err := strconv.ParseUint(kv["priority"], 10, 32)
	if err != nil {
		return r, fmt.Errorf("invalid priority: %w", err)
	}
	r.Priority = uint32(priority)

	switch kv["ip_version"] {
	case "", "0":
		r.IPVer = 0
	case "4":
		r.IPVer = 4
	case "6":
		r.IPVer = 6
	default:
		return r, fmt.Errorf("invalid ip_version %q", kv["ip_version"])
	}

	if proto, ok := kv["protocol"]; ok && proto != "" {
		p, err := parseProtocol(proto)
		if err != nil {
			return r, err
		}
		r.Protocol = p
	}

	if src, ok := kv["src"]; ok && src != "" {
		addr, mask, err := parseCIDR(src)
		if err != nil {
			return r, fmt.Errorf("invalid src: %w", err)
		}
		r.SrcAddr, r.SrcMask = addr, mask
	}
	if dst, ok := kv["dst"]; ok && dst != "" {
		addr, mask, err := parseCIDR(dst)
		if err != nil {
			return r, fmt.Errorf("invalid dst: %w", err)
		}
		r.DstAddr, r.DstMask = addr, mask
	}

	if sp, ok := kv["src_port"]; ok && sp != "" {
		v, err := strconv.ParseUint(sp, 10, 16)
		if err != nil {
			return r, fmt.Errorf("invalid src_port: %w", err)
		}
		r.SrcPort = uint16(v)
	}
	if dp, ok := kv["dst_port"]; ok && dp != "" {
		v, err := strconv.ParseUint(dp, 10, 16)
		if err != nil {
			return r, fmt.Errorf("invalid dst_port: %w", err)
		}
		r.DstPort = uint16(v)
	}

	switch strings.ToLower(kv["action"]) {
	case "drop":
		r.Action = ruletable.ActionDrop
	case "fwd", "forward":
		r.Action = ruletable.ActionForward
		iface := kv["out_iface"]
		if iface == "" {
			return r, fmt.Errorf("fwd rule missing out_iface")
		}
		idx, err := resolve(iface)
		if err != nil {
			return r, fmt.Errorf("out_iface %q: %w", iface, err)
		}
		r.OutIfindex = idx
	default:
		return r, fmt.Errorf("invalid action %q", kv["action"])
	}

	return r, nil
}

func parseProtocol(s string) (uint8, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return 6, nil
	case "udp":
		return 17, nil
	case "icmp":
		return 1, nil
	case "icmpv6":
		return 58, nil
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid protocol %q", s)
	}
	return uint8(v), nil
}

// parseCIDR parses "addr[/prefixlen]" (default prefix = full address
// length) into a 16-byte address/mask pair. IPv4 addresses are stored
// left-aligned in the first 4 bytes, matching FlowKey's convention.
func parseCIDR(s string) (addr, mask [16]byte, err error) {
	addrStr := s
	prefixLen := -1
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		addrStr = s[:idx]
		p, perr := strconv.Atoi(s[idx+1:])
		if perr != nil {
			return addr, mask, fmt.Errorf("invalid prefix length in %q", s)
		}
		prefixLen = p
	}

	ip := net.ParseIP(addrStr)
	if ip == nil {
		return addr, mask, fmt.Errorf("invalid address %q", addrStr)
	}
	if v4 := ip.To4(); v4 != nil {
		copy(addr[:4], v4)
		if prefixLen < 0 {
			prefixLen = 32
		}
		fillMask(mask[:4], prefixLen)
		return addr, mask, nil
	}
	v6 := ip.To16()
	copy(addr[:], v6)
	if prefixLen < 0 {
		prefixLen = 128
	}
	fillMask(mask[:], prefixLen)
	return addr, mask, nil
}

func fillMask(mask []byte, prefixLen int) {
	for i := range mask {
		switch {
		case prefixLen >= 8:
			mask[i] = 0xFF
			prefixLen -= 8
		case prefixLen > 0:
			mask[i] = 0xFF << uint(8-prefixLen)
			prefixLen = 0
		default:
			mask[i] = 0
		}
	}
}
