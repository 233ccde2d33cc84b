// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package watchlist

import "strings"

// knownOUIs maps the 3-byte OUI prefix of a MAC address to a manufacturer.
// A small curated set of consumer-device vendors; everything else reports
// Unknown.
var knownOUIs = map[string]string{
	"00:17:f2": "Apple", "00:1c:b3": "Apple", "00:23:12": "Apple",
	"00:26:bb": "Apple", "04:26:65": "Apple", "10:dd:b1": "Apple",
	"18:af:61": "Apple", "28:cf:e9": "Apple", "34:c0:59": "Apple",
	"40:d3:2d": "Apple", "58:55:ca": "Apple", "60:03:08": "Apple",
	"70:56:81": "Apple", "78:4f:43": "Apple", "90:60:f1": "Apple",
	"a4:d1:8c": "Apple", "b0:65:bd": "Apple", "d0:03:4b": "Apple",
	"e0:f5:c6": "Apple", "f0:18:98": "Apple", "f4:f1:5a": "Apple",

	"00:17:c8": "Samsung", "08:fc:88": "Samsung", "18:89:5b": "Samsung",
	"38:01:46": "Samsung", "44:a7:cf": "Samsung", "60:6b:bd": "Samsung",
	"90:18:7c": "Samsung", "b4:3a:28": "Samsung", "d0:22:be": "Samsung",

	"00:0c:e7": "Google", "3c:5a:b4": "Google", "54:60:09": "Google",
	"f4:f5:d8": "Google",

	"00:21:6a": "Amazon", "38:f7:3d": "Amazon", "40:b4:cd": "Amazon",
	"74:75:48": "Amazon", "a0:02:dc": "Amazon",

	"00:0d:93": "Netgear", "30:46:9a": "Netgear", "b0:7f:b9": "Netgear",

	"00:1d:7e": "Cisco", "2c:54:2d": "Cisco", "58:ac:78": "Cisco",

	"00:18:60": "Ring", "28:6d:97": "Ring", "30:81:71": "Ring",
	"2c:aa:8e": "Ring",

	"00:04:4b": "Nvidia",
}

// ManufacturerFor resolves a MAC address's vendor from its OUI prefix.
// Returns "Unknown" for unrecognized or malformed addresses.
func ManufacturerFor(mac string) string {
	if len(mac) < 8 {
		return "Unknown"
	}
	if m, ok := knownOUIs[strings.ToLower(mac[:8])]; ok {
		return m
	}
	return "Unknown"
}
