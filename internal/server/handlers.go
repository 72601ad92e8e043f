// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// NewWebSocketHandler returns the upgrade handler for /ws. Each accepted
// connection becomes a Client registered with the hub, which launches its
// pump goroutines.
func NewWebSocketHandler(hub *Hub, cfg *Config, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newOriginChecker(cfg.Origins(), log).Check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		hub.Register(NewClient(conn, hub, cfg, r.RemoteAddr))
	}
}

// HealthHandler provides a simple health check endpoint.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Huddle server is running!")
}

// TestPageHandler serves a minimal HTML page for exercising the chat
// protocol by hand: join, send messages, react, and watch typing and
// presence events. The production front end is served separately.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		slog.Warn("error writing test page response", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Huddle Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        #users { color: #555; margin: 5px 0; }
    </style>
</head>
<body>
    <h1>Huddle Protocol Test</h1>
    <div id="users">users: (none)</div>
    <div>
        <input type="text" id="nameInput" placeholder="Display name...">
        <button onclick="join()">Join</button>
        <button onclick="send('leave chat')">Leave</button>
        <button onclick="send('end chat')">End chat</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>
    <div id="log"></div>

    <script>
        const ws = new WebSocket('ws://' + location.host + '/ws');
        const log = (line) => {
            const div = document.createElement('div');
            div.textContent = line;
            const box = document.getElementById('log');
            box.appendChild(div);
            box.scrollTop = box.scrollHeight;
        };

        function send(event, data) {
            ws.send(JSON.stringify(data === undefined ? { event } : { event, data }));
        }

        function join() {
            send('set username', { name: document.getElementById('nameInput').value.trim() });
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            if (input.value.trim()) {
                send('chat message', { text: input.value.trim() });
                send('stop typing');
                input.value = '';
            }
        }

        document.getElementById('messageInput').addEventListener('input', () => send('typing'));
        document.getElementById('messageInput').addEventListener('keypress', (e) => {
            if (e.key === 'Enter') sendMessage();
        });

        ws.onmessage = (frame) => {
            const { event, data } = JSON.parse(frame.data);
            switch (event) {
            case 'set username':
                if (data.success) {
                    document.getElementById('messageInput').disabled = false;
                    document.getElementById('sendButton').disabled = false;
                    log('joined as ' + data.username);
                } else {
                    log('join rejected: ' + data.message);
                }
                break;
            case 'chat message':
                log(data.user + ': ' + data.message);
                break;
            case 'update user list':
                document.getElementById('users').textContent = 'users: ' + (data.length ? data.join(', ') : '(none)');
                break;
            case 'user joined': log(data.name + ' joined'); break;
            case 'user left': log(data.name + ' left'); break;
            case 'display typing': log(data.name + ' is typing...'); break;
            case 'end chat': log('chat ended'); break;
            }
        };
        ws.onclose = () => log('connection closed');
    </script>
</body>
</html>`
