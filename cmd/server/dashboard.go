package main

import (
	"net/http"
)

// dashboardHandler serves the single-page ops dashboard. It is static HTML
// that polls /metrics and /api/status.
func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>WrenchGate Dashboard</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #111827;
            color: #e5e7eb;
            min-height: 100vh;
            padding: 24px;
        }
        .container { max-width: 1100px; margin: 0 auto; }
        .header { margin-bottom: 24px; }
        .header h1 { font-size: 1.8em; }
        .header p { color: #9ca3af; margin-top: 4px; }
        .breaker-badge {
            display: inline-block;
            margin-left: 12px;
            padding: 4px 14px;
            border-radius: 14px;
            font-size: 0.55em;
            vertical-align: middle;
            text-transform: uppercase;
            letter-spacing: 1px;
        }
        .breaker-badge.closed { background: #064e3b; color: #6ee7b7; }
        .breaker-badge.open { background: #7f1d1d; color: #fca5a5; }
        .breaker-badge.half-open { background: #78350f; color: #fcd34d; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(170px, 1fr));
            gap: 14px;
            margin-bottom: 24px;
        }
        .card {
            background: #1f2937;
            border: 1px solid #374151;
            border-radius: 10px;
            padding: 18px;
        }
        .card .label {
            color: #9ca3af;
            font-size: 0.75em;
            text-transform: uppercase;
            letter-spacing: 1px;
            margin-bottom: 8px;
        }
        .card .value { font-size: 1.9em; font-weight: 700; }
        .value.ok { color: #34d399; }
        .value.limited { color: #fbbf24; }
        .value.rejected { color: #f87171; }
        .value.fenced { color: #c084fc; }
        .table-card {
            background: #1f2937;
            border: 1px solid #374151;
            border-radius: 10px;
            padding: 18px;
        }
        .table-card h2 { font-size: 1.1em; margin-bottom: 14px; }
        table { width: 100%; border-collapse: collapse; }
        th {
            text-align: left;
            padding: 8px 10px;
            color: #9ca3af;
            font-size: 0.75em;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            border-bottom: 1px solid #374151;
        }
        td { padding: 8px 10px; border-bottom: 1px solid #374151; font-size: 0.92em; }
        tr:last-child td { border-bottom: none; }
        .muted { color: #6b7280; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>🏍️ WrenchGate
                <span class="breaker-badge closed" id="breakerBadge">closed</span>
            </h1>
            <p>Admission gate for the motorcycle repair assistant</p>
        </div>

        <div class="grid">
            <div class="card">
                <div class="label">Total Requests</div>
                <div class="value" id="totalRequests">0</div>
            </div>
            <div class="card">
                <div class="label">Allowed</div>
                <div class="value ok" id="allowed">0</div>
            </div>
            <div class="card">
                <div class="label">Rate Limited</div>
                <div class="value limited" id="rateLimited">0</div>
            </div>
            <div class="card">
                <div class="label">Rejected Queries</div>
                <div class="value rejected" id="rejectedQuery">0</div>
            </div>
            <div class="card">
                <div class="label">Circuit Open</div>
                <div class="value fenced" id="circuitOpen">0</div>
            </div>
            <div class="card">
                <div class="label">Upstream Errors</div>
                <div class="value rejected" id="upstreamErrors">0</div>
            </div>
            <div class="card">
                <div class="label">Unique Clients</div>
                <div class="value" id="uniqueClients">0</div>
            </div>
        </div>

        <div class="table-card">
            <h2>Busiest Clients</h2>
            <table>
                <thead>
                    <tr>
                        <th>Client</th>
                        <th>Total</th>
                        <th>Allowed</th>
                        <th>Rejected</th>
                        <th>Last Seen</th>
                    </tr>
                </thead>
                <tbody id="clientsTable">
                    <tr><td colspan="5" class="muted">No requests yet</td></tr>
                </tbody>
            </table>
        </div>
    </div>

    <script>
        async function refresh() {
            try {
                const [metrics, status] = await Promise.all([
                    fetch('/metrics').then(r => r.json()),
                    fetch('/api/status').then(r => r.json()),
                ]);
                render(metrics, status);
            } catch (err) {
                console.error('dashboard refresh failed:', err);
            }
        }

        function render(m, status) {
            const set = (id, v) => {
                document.getElementById(id).textContent = (v || 0).toLocaleString();
            };
            set('totalRequests', m.total_requests);
            set('allowed', m.allowed);
            set('rateLimited', m.rate_limited);
            set('rejectedQuery', m.rejected_query);
            set('circuitOpen', m.circuit_open);
            set('upstreamErrors', m.upstream_errors);
            set('uniqueClients', m.unique_clients);

            const state = status.circuit_breaker.state;
            const badge = document.getElementById('breakerBadge');
            badge.textContent = state;
            badge.className = 'breaker-badge ' + state;

            const tbody = document.getElementById('clientsTable');
            if (m.top_clients && m.top_clients.length > 0) {
                tbody.innerHTML = m.top_clients.map(c => {
                    const lastSeen = new Date(c.last_request_at).toLocaleTimeString();
                    return '<tr>' +
                        '<td><strong>' + c.client_key + '</strong></td>' +
                        '<td>' + c.total_requests.toLocaleString() + '</td>' +
                        '<td>' + c.allowed + '</td>' +
                        '<td>' + c.rejected + '</td>' +
                        '<td>' + lastSeen + '</td>' +
                        '</tr>';
                }).join('');
            } else {
                tbody.innerHTML = '<tr><td colspan="5" class="muted">No requests yet</td></tr>';
            }
        }

        refresh();
        setInterval(refresh, 3000);
    </script>
</body>
</html>`
