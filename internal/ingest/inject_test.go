package ingest

import (
	"strings"
	"testing"
)

func TestInjectBeforeClosingHead(t *testing.T) {
	doc := []byte("<html><head><title>x</title></head><body></body></html>")
	out := string(injectAgent(doc, "/agent.js", "b1", "g1"))

	tagIdx := strings.Index(out, agentMarker)
	headIdx := strings.Index(out, "</head>")
	if tagIdx < 0 {
		t.Fatal("bootstrap tag missing")
	}
	if tagIdx > headIdx {
		t.Fatal("bootstrap must sit before the closing head tag")
	}
	if !strings.Contains(out, "bannerId=b1") || !strings.Contains(out, "groupId=g1") {
		t.Fatalf("tag missing addressing params: %s", out)
	}
}

func TestInjectWithoutHeadAppends(t *testing.T) {
	doc := []byte("<canvas></canvas>")
	out := string(injectAgent(doc, "/agent.js", "b1", ""))
	if !strings.HasPrefix(out, "<canvas></canvas>") {
		t.Fatal("original document must be preserved")
	}
	if !strings.Contains(out, agentMarker) {
		t.Fatal("bootstrap tag missing")
	}
	if strings.Contains(out, "groupId") {
		t.Fatal("ungrouped creative must not carry a groupId param")
	}
}

func TestInjectIsIdempotent(t *testing.T) {
	doc := []byte("<html><head></head><body></body></html>")
	once := injectAgent(doc, "/agent.js", "b1", "")
	twice := injectAgent(once, "/agent.js", "b1", "")
	if string(once) != string(twice) {
		t.Fatal("second injection must be a no-op")
	}
	if strings.Count(string(twice), agentMarker) != 1 {
		t.Fatal("exactly one bootstrap tag expected")
	}
}

func TestInjectMatchesHeadCaseInsensitively(t *testing.T) {
	doc := []byte("<HTML><HEAD></HEAD><BODY></BODY></HTML>")
	out := string(injectAgent(doc, "/agent.js", "b1", ""))
	if strings.Index(out, agentMarker) > strings.Index(out, "</HEAD>") {
		t.Fatal("bootstrap must precede the closing head tag regardless of case")
	}
}
