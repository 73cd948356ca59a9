package webmonitor

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Overlay Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <link rel="stylesheet" href="/assets/monitor.css">
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">Overlay Monitor</div>
            <span class="badge badge-secondary" id="status-badge">Waiting for data...</span>
        </div>

        <div class="grid">
            <div class="panel" style="grid-row: span 2;">
                <div class="panel-head">
                    <div>
                        <h2>Live Feed</h2>
                        <p class="panel-subtitle" id="surface-label">surface: -</p>
                    </div>
                    <div class="controls">
                        <label><input type="checkbox" id="mirror-toggle"> Mirror</label>
                        <button type="button" id="btn-record">Record</button>
                    </div>
                </div>
                <div id="video-panel">
                    <img id="stream" src="/stream" alt="Live feed with detection overlay">
                </div>
                <p class="footer-note">
                    Frames are letterboxed into this panel and detections are drawn at the mapped positions.
                </p>
            </div>

            <div class="panel">
                <h2>Pipeline</h2>
                <div class="stats" id="stats"></div>
            </div>

            <div class="panel">
                <h2>Latest Result</h2>
                <div id="latest" class="latest">No result yet</div>
                <h2 style="margin-top:16px;">History</h2>
                <ul id="history" class="history"></ul>
            </div>
        </div>
    </div>
    <script src="/assets/viewer.js"></script>
</body>
</html>
`

const monitorCSS = `:root {
    color-scheme: dark;
    --bg: #11141a;
    --panel: #1b1f27;
    --text: #e6e6e6;
    --muted: #8b93a1;
    --accent: #ff4d4d;
}
* { box-sizing: border-box; }
body { margin: 0; background: var(--bg); color: var(--text); font-family: system-ui, sans-serif; }
.app { max-width: 1400px; margin: 0 auto; padding: 16px; }
.header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 16px; }
.title { font-size: 20px; font-weight: 600; }
.badge { padding: 4px 10px; border-radius: 12px; font-size: 12px; }
.badge-secondary { background: #333a46; color: var(--muted); }
.badge-success { background: #1f4d2b; color: #7ee29a; }
.badge-warning { background: #4d3b1f; color: #e2c07e; }
.grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; }
.panel { background: var(--panel); border-radius: 8px; padding: 16px; }
.panel h2 { margin: 0 0 8px; font-size: 15px; }
.panel-head { display: flex; justify-content: space-between; align-items: center; margin-bottom: 10px; }
.panel-subtitle { margin: 0; color: var(--muted); font-size: 12px; }
.controls { display: flex; gap: 12px; align-items: center; font-size: 13px; }
.controls button { background: #333a46; color: var(--text); border: 0; border-radius: 4px; padding: 6px 12px; cursor: pointer; }
.controls button.active { background: var(--accent); }
#video-panel { position: relative; width: 100%; aspect-ratio: 16 / 9; background: #000; }
#stream { width: 100%; height: 100%; display: block; }
.footer-note { color: var(--muted); font-size: 12px; }
.stats { display: grid; grid-template-columns: 1fr auto; gap: 4px 12px; font-size: 13px; }
.stats .value { text-align: right; font-variant-numeric: tabular-nums; }
.latest, .history { font-size: 13px; font-family: ui-monospace, monospace; }
.history { list-style: none; padding: 0; margin: 0; max-height: 280px; overflow-y: auto; }
.history li { padding: 4px 0; border-bottom: 1px solid #262b35; }
`

const viewerJS = `(function () {
    const panel = document.getElementById('video-panel');
    const mirror = document.getElementById('mirror-toggle');
    const surfaceLabel = document.getElementById('surface-label');
    const badge = document.getElementById('status-badge');
    const stats = document.getElementById('stats');
    const latest = document.getElementById('latest');
    const historyList = document.getElementById('history');
    const recordBtn = document.getElementById('btn-record');

    let ws = null;
    let resizeTimer = null;

    function surface() {
        const rect = panel.getBoundingClientRect();
        const dpr = window.devicePixelRatio || 1;
        return {
            type: 'surface',
            width: Math.round(rect.width * dpr),
            height: Math.round(rect.height * dpr),
            mirrored: mirror.checked,
        };
    }

    function reportSurface() {
        const msg = surface();
        surfaceLabel.textContent = 'surface: ' + msg.width + 'x' + msg.height + (msg.mirrored ? ' (mirrored)' : '');
        if (ws && ws.readyState === WebSocket.OPEN) {
            ws.send(JSON.stringify(msg));
            return;
        }
        fetch('/api/surface', {
            method: 'POST',
            headers: { 'Content-Type': 'application/json' },
            body: JSON.stringify({ width: msg.width, height: msg.height, mirrored: msg.mirrored }),
        }).catch(() => {});
    }

    function scheduleReport() {
        clearTimeout(resizeTimer);
        resizeTimer = setTimeout(reportSurface, 150);
    }

    function describe(ev) {
        if (ev.kind === 'image') {
            return '#' + ev.seq + ' processed image ' + ev.source.width + 'x' + ev.source.height;
        }
        const items = (ev.mapped || []).map((d) => {
            const label = d.label ? d.label + ' ' : '';
            return label + '(' + d.x.toFixed(0) + ', ' + d.y.toFixed(0) + ')';
        });
        return '#' + ev.seq + ' ' + ev.num_detections + ' detections ' + items.join(' ');
    }

    function onResult(ev) {
        latest.textContent = describe(ev);
        if (ev.num_detections > 0) {
            const li = document.createElement('li');
            li.textContent = new Date(ev.timestamp * 1000).toLocaleTimeString() + ' ' + describe(ev);
            historyList.prepend(li);
            while (historyList.children.length > 50) {
                historyList.removeChild(historyList.lastChild);
            }
        }
    }

    function connect() {
        const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
        ws = new WebSocket(proto + location.host + '/ws');
        ws.onopen = reportSurface;
        ws.onmessage = (msg) => {
            try {
                onResult(JSON.parse(msg.data));
            } catch (e) {
                console.warn('bad event', e);
            }
        };
        ws.onclose = () => {
            ws = null;
            setTimeout(connect, 2000);
        };
    }

    function renderStats(payload) {
        const m = payload.monitor || {};
        const rows = [
            ['Capture FPS', (m.current_fps || 0).toFixed(1) + ' / ' + (m.target_fps || 0)],
            ['Frames captured', m.frames_captured],
            ['Frames dispatched', m.frames_dispatched],
            ['Frames dropped', m.frames_dropped],
            ['In flight', m.in_flight],
            ['Results applied', m.results_applied],
            ['Stale results', m.results_stale],
            ['Transport errors', m.transport_errors],
            ['Request latency', (m.request_latency_ms || 0).toFixed(1) + ' ms'],
        ];
        stats.innerHTML = '';
        rows.forEach(([k, v]) => {
            const key = document.createElement('div');
            key.textContent = k;
            const val = document.createElement('div');
            val.className = 'value';
            val.textContent = v === undefined ? '-' : v;
            stats.append(key, val);
        });
        if (m.results_applied > 0) {
            badge.textContent = 'Receiving results';
            badge.className = 'badge badge-success';
        } else {
            badge.textContent = 'Waiting for data...';
            badge.className = 'badge badge-secondary';
        }
    }

    function watchStatus() {
        const source = new EventSource('/api/status/stream');
        source.onmessage = (msg) => {
            try {
                renderStats(JSON.parse(msg.data));
            } catch (e) {
                console.warn('bad status', e);
            }
        };
        source.onerror = () => {
            badge.textContent = 'Disconnected';
            badge.className = 'badge badge-warning';
        };
    }

    async function refreshRecording() {
        const res = await fetch('/api/recording/status');
        const st = await res.json();
        recordBtn.classList.toggle('active', !!st.recording);
        recordBtn.textContent = st.recording ? 'Stop (' + st.frame_count + ')' : 'Record';
    }

    recordBtn.addEventListener('click', async () => {
        const active = recordBtn.classList.contains('active');
        await fetch(active ? '/api/recording/stop' : '/api/recording/start', { method: 'POST' });
        refreshRecording();
    });

    mirror.addEventListener('change', reportSurface);
    new ResizeObserver(scheduleReport).observe(panel);

    connect();
    watchStatus();
    refreshRecording();
    setInterval(refreshRecording, 2000);
})();
`
