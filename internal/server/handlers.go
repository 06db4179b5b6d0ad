// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Tyrowin/chathub/internal/cid"
)

const healthBody = "Chat hub is running!"

// handleWebSocket upgrades the request, derives the client id from the
// handshake key and hands the connection to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	handshakeKey := r.Header.Get("Sec-WebSocket-Key")
	correlationID := cid.FromContext(r.Context())

	_, span := s.hub.tracer.Start(r.Context(), "ws.accept",
		trace.WithAttributes(attribute.String(cid.AttributeName, correlationID)))
	defer span.End()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		span.SetStatus(codes.Error, "upgrade failed")
		s.log.Warn("WebSocket upgrade failed",
			zap.String("cid", correlationID),
			zap.String("addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	client := NewClient(conn, deriveID(handshakeKey), r.RemoteAddr, correlationID, s.cfg, s.log.Named("client"))
	span.SetAttributes(attribute.String("chathub.client_id", client.ID()))
	if err := s.hub.Attach(client); err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.log.Info("rejected connection", zap.String("cid", correlationID), zap.Error(err))
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, healthBody)
}

// TestPageHandler serves an HTML page that speaks the hub protocol: it shows
// the assigned identity, the live client list, and lets the user rename and chat.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Hub Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #layout { display: flex; gap: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            width: 480px;
            padding: 10px;
            overflow-y: scroll;
            background-color: #f9f9f9;
        }
        #clients { border: 1px solid #ccc; width: 200px; padding: 10px; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Chat Hub Test</h1>
    <div id="status" class="status disconnected">Disconnected</div>
    <div>
        <input type="text" id="nicknameInput" placeholder="Nickname..." disabled>
        <button id="nicknameButton" onclick="setNickname()" disabled>Rename</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div id="layout">
        <div id="messages"></div>
        <ul id="clients"></ul>
    </div>

    <script>
        let ws = null;
        let self = null;
        const messagesDiv = document.getElementById('messages');
        const clientsList = document.getElementById('clients');
        const statusDiv = document.getElementById('status');
        const inputs = ['nicknameInput', 'nicknameButton', 'messageInput', 'sendButton']
            .map(id => document.getElementById(id));

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.color = color || 'gray';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected as ' + (self ? self.nickname : '...') : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            inputs.forEach(el => el.disabled = !connected);
            document.getElementById('connectButton').textContent = connected ? 'Disconnect' : 'Connect';
        }

        function renderClients(list) {
            clientsList.innerHTML = '';
            list.forEach(c => {
                const li = document.createElement('li');
                li.textContent = c.nickname + (self && c.id === self.id ? ' (you)' : '');
                clientsList.appendChild(li);
                if (self && c.id === self.id) { self.nickname = c.nickname; }
            });
            updateStatus(true);
        }

        function handle(evt) {
            switch (evt.type) {
            case 'init': self = evt.payload; updateStatus(true); break;
            case 'join':
            case 'leave': addLine(evt.payload.msg); break;
            case 'message':
                addLine(evt.payload.nickname + ': ' + evt.payload.msg,
                    self && evt.payload.id === self.id ? 'blue' : 'green');
                break;
            case 'updateClientList': renderClients(evt.payload); break;
            case 'error': addLine('Error: ' + evt.payload.msg, 'red'); break;
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => addLine('Connected to chat hub');
            ws.onmessage = e => handle(JSON.parse(e.data));
            ws.onclose = () => { addLine('Connection closed'); self = null; ws = null; updateStatus(false); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) { ws.close(); } else { connect(); }
        }

        function send(type, payload) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: type, payload: payload }));
            }
        }

        function setNickname() {
            const input = document.getElementById('nicknameInput');
            send('setNickname', { nickname: input.value.trim() });
            input.value = '';
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            const msg = input.value.trim();
            if (msg) { send('message', { msg: msg }); }
            input.value = '';
        }

        document.getElementById('messageInput').addEventListener('keypress', e => {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
