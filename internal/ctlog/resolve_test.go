package ctlog

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gustycube/certwatch/internal/types"
)

func TestSelect_LatestNotAfterWins(t *testing.T) {
	records := []types.CertificateRecord{
		{IssuerName: "A", NotBefore: "2025-01-01T00:00:00", NotAfter: "2025-06-01T00:00:00"},
		{IssuerName: "B", NotBefore: "2025-05-01T00:00:00", NotAfter: "2026-08-01T00:00:00"},
		{IssuerName: "C", NotBefore: "2025-03-01T00:00:00", NotAfter: "2026-01-01T00:00:00"},
		{IssuerName: "D", NotAfter: "2030-01-01T00:00:00"},
	}

	info, err := Select("example.com", records, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Issuer != "B" {
		t.Errorf("Issuer = %q, want B (records missing not_before are ignored)", info.Issuer)
	}
}

func TestSelect_TieKeepsFirstOccurrence(t *testing.T) {
	records := []types.CertificateRecord{
		{IssuerName: "early", NotBefore: "2026-01-01T00:00:00", NotAfter: "2026-01-10T00:00:00"},
		{IssuerName: "first", NotBefore: "2026-01-02T00:00:00", NotAfter: "2026-06-01T00:00:00"},
		{IssuerName: "second", NotBefore: "2026-01-03T00:00:00", NotAfter: "2026-06-01T00:00:00"},
		{IssuerName: "third", NotBefore: "2026-01-04T00:00:00", NotAfter: "2026-06-01T00:00:00Z"},
	}

	info, err := Select("example.com", records, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Issuer != "first" {
		t.Errorf("Issuer = %q, want first", info.Issuer)
	}
	if info.ValidFrom != "2026-01-02T00:00:00" {
		t.Errorf("ValidFrom = %q", info.ValidFrom)
	}
}

func TestSelect_NoValidRecords(t *testing.T) {
	records := []types.CertificateRecord{
		{IssuerName: "A", NotBefore: "2025-01-01"},
		{IssuerName: "B", NotAfter: "2026-01-01"},
		{IssuerName: "C", NotBefore: "", NotAfter: ""},
	}

	info, err := Select("example.com", records, fixedNow)
	if info != nil {
		t.Fatalf("expected no partial result, got %+v", info)
	}
	var resErr *ResolutionError
	if !errors.As(err, &resErr) || !strings.Contains(resErr.Message, "no valid certificates found") {
		t.Fatalf("expected no valid certificates error, got %v", err)
	}
}

func TestSelect_Empty(t *testing.T) {
	_, err := Select("example.com", nil, fixedNow)
	if err == nil || !strings.Contains(err.Error(), "no certificates found") {
		t.Fatalf("expected no certificates error, got %v", err)
	}
}

func TestSelect_UnparseableExpiryIgnored(t *testing.T) {
	records := []types.CertificateRecord{
		{IssuerName: "garbage", NotBefore: "2026-01-01", NotAfter: "not a date"},
		{IssuerName: "good", NotBefore: "2026-01-01", NotAfter: "2026-03-02"},
	}

	info, err := Select("example.com", records, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Issuer != "good" {
		t.Errorf("Issuer = %q, want good", info.Issuer)
	}
}

func TestDaysRemaining(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name     string
		notAfter time.Time
		want     int
	}{
		{"exactly now", fixedNow, 0},
		{"one nanosecond left", fixedNow.Add(time.Nanosecond), 1},
		{"half a day left", fixedNow.Add(12 * time.Hour), 1},
		{"exactly 30 days", fixedNow.Add(30 * day), 30},
		{"30 days and a minute", fixedNow.Add(30*day + time.Minute), 31},
		{"expired half a day ago", fixedNow.Add(-12 * time.Hour), 0},
		{"expired 1.5 days ago", fixedNow.Add(-36 * time.Hour), -1},
		{"expired 10 days ago", fixedNow.Add(-10 * day), -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysRemaining(tt.notAfter, fixedNow); got != tt.want {
				t.Errorf("DaysRemaining = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSelect_ExpiredCertificateIsNegative(t *testing.T) {
	records := []types.CertificateRecord{
		{NotBefore: "2025-01-01T00:00:00", NotAfter: "2026-02-19T12:00:00"},
	}

	info, err := Select("example.com", records, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.DaysRemaining != -10 {
		t.Errorf("DaysRemaining = %d, want -10", info.DaysRemaining)
	}
}

func TestParseTime(t *testing.T) {
	inputs := []string{
		"2026-03-01T12:00:00",
		"2026-03-01T12:00:00Z",
		"2026-03-01T12:00:00+00:00",
		"2026-03-01 12:00:00",
		"2026-03-01T12:00:00.000",
	}
	for _, in := range inputs {
		got, err := ParseTime(in)
		if err != nil {
			t.Errorf("ParseTime(%q) error: %v", in, err)
			continue
		}
		if !got.Equal(fixedNow) {
			t.Errorf("ParseTime(%q) = %v, want %v", in, got, fixedNow)
		}
	}

	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("expected error for unrecognized input")
	}
}
