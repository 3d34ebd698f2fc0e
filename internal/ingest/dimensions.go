package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// Dimension detection order is strict: the ad.size meta tag wins; the canvas
// fallback applies only to documents carrying a known authoring-tool
// signature. A creative with undetectable dimensions cannot be placed in the
// grid, so there is no guessed default.

var (
	metaTagPattern    = regexp.MustCompile(`(?is)<meta\b[^>]*>`)
	attrPattern       = regexp.MustCompile(`(?is)([a-zA-Z-]+)\s*=\s*("([^"]*)"|'([^']*)')`)
	adSizePattern     = regexp.MustCompile(`(?i)^\s*width\s*=\s*(\d+)\s*,\s*height\s*=\s*(\d+)\s*$`)
	canvasTagPattern  = regexp.MustCompile(`(?is)<canvas\b[^>]*>`)
	numericDimPattern = regexp.MustCompile(`^\d+$`)
)

// Generator markers of authoring tools known to emit a correctly sized first
// canvas.
var authoringToolSignatures = []string{
	"adobe animate",
	"google web designer",
	"createjs",
}

func detectDimensions(doc []byte) (int, int, error) {
	if w, h, ok := dimensionsFromAdSizeMeta(doc); ok {
		return w, h, nil
	}
	if hasAuthoringToolSignature(doc) {
		if w, h, ok := dimensionsFromCanvas(doc); ok {
			return w, h, nil
		}
	}
	return 0, 0, errOf(KindDimensionsUndetectable, "no ad.size meta tag and no authoring-tool canvas", nil)
}

func dimensionsFromAdSizeMeta(doc []byte) (int, int, bool) {
	for _, tag := range metaTagPattern.FindAll(doc, -1) {
		attrs := parseAttrs(string(tag))
		if !strings.EqualFold(attrs["name"], "ad.size") {
			continue
		}
		m := adSizePattern.FindStringSubmatch(attrs["content"])
		if m == nil {
			continue
		}
		w, errW := strconv.Atoi(m[1])
		h, errH := strconv.Atoi(m[2])
		if errW != nil || errH != nil || w <= 0 || h <= 0 {
			continue
		}
		return w, h, true
	}
	return 0, 0, false
}

func hasAuthoringToolSignature(doc []byte) bool {
	lowered := strings.ToLower(string(doc))
	for _, sig := range authoringToolSignatures {
		if strings.Contains(lowered, sig) {
			return true
		}
	}
	return false
}

func dimensionsFromCanvas(doc []byte) (int, int, bool) {
	tag := canvasTagPattern.Find(doc)
	if tag == nil {
		return 0, 0, false
	}
	attrs := parseAttrs(string(tag))
	wRaw, hRaw := strings.TrimSpace(attrs["width"]), strings.TrimSpace(attrs["height"])
	if !numericDimPattern.MatchString(wRaw) || !numericDimPattern.MatchString(hRaw) {
		return 0, 0, false
	}
	w, _ := strconv.Atoi(wRaw)
	h, _ := strconv.Atoi(hRaw)
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func parseAttrs(tag string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(tag, -1) {
		key := strings.ToLower(m[1])
		value := m[3]
		if value == "" {
			value = m[4]
		}
		if _, seen := attrs[key]; !seen {
			attrs[key] = value
		}
	}
	return attrs
}
