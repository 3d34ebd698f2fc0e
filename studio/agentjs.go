package main

import "net/http"

// agentJS is the bootstrap injected into every packaged creative. It mirrors
// the Go agent's protocol for creatives rendered in a real browser context:
// poll for a master timeline, pause on discovery, announce ready, hold the
// most recent pre-discovery command, filter the shared channel by id/group.
const agentJS = `(function () {
  'use strict';
  var script = document.currentScript || document.querySelector('script[data-bs-agent]');
  if (!script) return;
  var params = new URL(script.src, window.location.href).searchParams;
  var bannerId = params.get('bannerId');
  var groupId = params.get('groupId') || '';
  if (!bannerId) return;

  var timelineReady = false;
  var pending = null;
  var commandActions = ['play', 'pause', 'captureScreenshot', 'global-play', 'global-pause', 'global-restart'];

  function resolveTimeline() {
    if (typeof window.getRootTimeline === 'function') {
      var tl = window.getRootTimeline();
      if (tl) return tl;
    }
    if (window.timeline && typeof window.timeline.play === 'function') return window.timeline;
    if (typeof window.play === 'function' && typeof window.pause === 'function') {
      return { play: window.play, pause: window.pause, seek: function () {} };
    }
    return null;
  }

  function send(msg) {
    window.parent.postMessage(JSON.stringify(msg), '*');
  }

  function execute(msg) {
    var tl = resolveTimeline();
    switch (msg.action) {
      case 'play':
      case 'pause':
        if (!tl) { send({ action: 'playPauseFailed', bannerId: bannerId, requestId: msg.requestId }); return; }
        if (msg.action === 'play') { tl.play(); } else { tl.pause(); }
        send({ action: 'playPauseResult', bannerId: bannerId, requestId: msg.requestId, isPlaying: msg.action === 'play' });
        break;
      case 'global-play':
        if (tl) tl.play();
        break;
      case 'global-pause':
        if (tl) tl.pause();
        break;
      case 'global-restart':
        if (tl) { if (tl.seek) tl.seek(0); tl.play(); }
        break;
      case 'captureScreenshot':
        captureScreenshot(msg);
        break;
    }
  }

  function captureScreenshot(msg) {
    var canvas = document.querySelector('canvas');
    if (!canvas) {
      send({ action: 'screenshotFailed', bannerId: bannerId, requestId: msg.requestId, error: 'noSurface' });
      return;
    }
    try {
      send({
        action: 'screenshotResult',
        bannerId: bannerId,
        requestId: msg.requestId,
        width: msg.width,
        height: msg.height,
        image: canvas.toDataURL('image/png')
      });
    } catch (err) {
      send({ action: 'screenshotFailed', bannerId: bannerId, requestId: msg.requestId, error: String(err) });
    }
  }

  window.addEventListener('message', function (event) {
    var msg;
    try { msg = JSON.parse(event.data); } catch (err) { return; }
    if (!msg || !msg.action) return;
    // Only commands may occupy the pending slot; the shared channel also
    // carries ready/result traffic from sibling creatives.
    if (commandActions.indexOf(msg.action) === -1) return;
    var mine = msg.bannerId === bannerId || (groupId && msg.groupId === groupId);
    if (!mine) return;
    if (!timelineReady) { pending = msg; return; }
    execute(msg);
  });

  var poll = setInterval(function () {
    var tl = resolveTimeline();
    if (!tl) return;
    clearInterval(poll);
    tl.pause();
    timelineReady = true;
    send({ action: 'ready', bannerId: bannerId, groupId: groupId });
    if (pending) { var replay = pending; pending = null; execute(replay); }
  }, 100);
})();
`

func handleAgentScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(agentJS))
}
