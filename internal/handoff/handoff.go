// Package handoff renders the HTML document returned to the OAuth popup.
// The document delivers the session credential to the window that opened the
// popup via postMessage bound to one explicit target origin, then closes the
// popup. Delivery is fire-and-forget; there is no retry or acknowledgment.
package handoff

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strings"
)

var (
	// ErrInvalidTargetOrigin indicates an empty or wildcard target origin.
	ErrInvalidTargetOrigin = errors.New("handoff.invalid_target_origin")
)

// User is the identity payload delivered alongside the credential.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Message is the cross-window payload posted to the opener.
type Message struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Dynamic values reach the script only as JSON produced by encoding/json,
// which escapes <, > and & — display names and emails cannot break out of
// the script element.
var successTemplate = template.Must(template.New("handoff").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>Connexion</title>
</head>
<body>
<p id="handoff-wait">Connexion en cours…</p>
<p id="handoff-error" hidden>La fenêtre d'origine est introuvable. Fermez cet onglet et réessayez depuis l'application.</p>
<script>
(function () {
  var message = {{.MessageJSON}};
  var targetOrigin = {{.TargetOriginJSON}};
  if (!window.opener || window.opener.closed) {
    document.getElementById("handoff-wait").hidden = true;
    document.getElementById("handoff-error").hidden = false;
    return;
  }
  window.opener.postMessage(message, targetOrigin);
  window.close();
})();
</script>
</body>
</html>
`))

var failureTemplate = template.Must(template.New("handoff_failure").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>Échec de connexion</title>
</head>
<body>
<p>Échec de la connexion : {{.Reason}}</p>
<p>Vous pouvez fermer cette fenêtre.</p>
<script>
(function () {
  if (window.opener && !window.opener.closed) {
    setTimeout(function () { window.close(); }, 5000);
  }
})();
</script>
</body>
</html>
`))

// Render writes the success document. targetOrigin must be a single explicit
// origin; the wildcard is rejected so the credential can never leak to an
// unintended listener.
func Render(writer io.Writer, message Message, targetOrigin string) error {
	trimmedOrigin := strings.TrimSpace(targetOrigin)
	if trimmedOrigin == "" || trimmedOrigin == "*" {
		return fmt.Errorf("handoff.render: %w", ErrInvalidTargetOrigin)
	}
	messageJSON, messageErr := json.Marshal(message)
	if messageErr != nil {
		return fmt.Errorf("handoff.render.encode: %w", messageErr)
	}
	originJSON, originErr := json.Marshal(trimmedOrigin)
	if originErr != nil {
		return fmt.Errorf("handoff.render.encode: %w", originErr)
	}
	return successTemplate.Execute(writer, struct {
		MessageJSON      template.JS
		TargetOriginJSON template.JS
	}{
		MessageJSON:      template.JS(messageJSON),
		TargetOriginJSON: template.JS(originJSON),
	})
}

// RenderFailure writes an explicit failure page. The popup closes itself
// after a few seconds when an opener exists; it never hangs silently.
func RenderFailure(writer io.Writer, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "authentification refusée"
	}
	return failureTemplate.Execute(writer, struct {
		Reason string
	}{
		Reason: reason,
	})
}
