package gopher

import (
	"bufio"
	"bytes"
	"net"
	"net/url"
	"strings"
)

// Item is one line of a gopher menu.
type Item struct {
	Type     byte
	Display  string
	Selector string
	Host     string
	Port     string
}

// Info reports whether the item is display-only.
func (i Item) Info() bool {
	return i.Type == 'i' || i.Type == '3'
}

// URL returns the gopher URL the item points at, or "" for items without a
// target.
func (i Item) URL() string {
	if i.Info() || i.Host == "" {
		return ""
	}
	host := i.Host
	if i.Port != "" && i.Port != DefaultPort {
		host = net.JoinHostPort(i.Host, i.Port)
	}
	u := url.URL{Scheme: "gopher", Host: host, Path: "/" + string(i.Type) + i.Selector}
	return u.String()
}

// ParseMenu decodes a gopher menu. Lines that are not tab separated are kept
// as info items; parsing stops at the lone "." terminator.
func ParseMenu(data []byte) []Item {
	var items []Item
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "." {
			break
		}
		if line == "" {
			continue
		}
		fields := strings.Split(line[1:], "\t")
		item := Item{Type: line[0], Display: fields[0]}
		if len(fields) < 3 {
			items = append(items, Item{Type: 'i', Display: line})
			continue
		}
		item.Selector = fields[1]
		item.Host = fields[2]
		if len(fields) > 3 {
			item.Port = strings.TrimSpace(fields[3])
		}
		items = append(items, item)
	}
	return items
}
