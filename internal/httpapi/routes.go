package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/idbridge/internal/handoff"
	"github.com/tyemirov/idbridge/internal/identity"
	"github.com/tyemirov/idbridge/internal/idp"
	"github.com/tyemirov/idbridge/internal/profile"
	"github.com/tyemirov/idbridge/pkg/sessiontoken"
)

// Dependencies carries everything the auth routes need. All fields are set
// once at startup and read-only afterwards.
type Dependencies struct {
	Verifier       idp.Verifier
	Reconciler     *profile.Reconciler
	Issuer         *sessiontoken.Issuer
	TokenVerifier  *sessiontoken.Verifier
	States         StateStore
	Metrics        MetricsRecorder
	Logger         *zap.Logger
	FrontendOrigin string
}

func (deps Dependencies) validate() Dependencies {
	if deps.Verifier == nil || deps.Reconciler == nil || deps.Issuer == nil || deps.TokenVerifier == nil || deps.States == nil {
		panic("httpapi: verifier, reconciler, issuer, token verifier, and state store are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = NewCounterMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return deps
}

// MountAuthRoutes registers /auth/google, /auth/google/callback,
// /auth/onetap, and /user.
func MountAuthRoutes(router gin.IRouter, deps Dependencies) {
	deps = deps.validate()

	router.GET("/auth/google", func(contextGin *gin.Context) {
		state, stateErr := deps.States.Issue(contextGin)
		if stateErr != nil {
			deps.Logger.Error("state issuance failed",
				zap.String("code", "auth.google.state_error"),
				zap.Error(stateErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		deps.Metrics.Increment(EventGoogleRedirect)
		contextGin.Redirect(http.StatusFound, deps.Verifier.AuthCodeURL(state))
	})

	router.GET("/auth/google/callback", func(contextGin *gin.Context) {
		if providerError := contextGin.Query("error"); providerError != "" {
			rejectCallback(contextGin, deps, "auth.callback.provider_denied", "accès refusé par Google")
			return
		}

		if consumeErr := deps.States.Consume(contextGin, contextGin.Query("state")); consumeErr != nil {
			rejectCallback(contextGin, deps, "auth.callback.bad_state", "état de connexion invalide ou expiré")
			return
		}

		rawProfile, verifyErr := deps.Verifier.VerifyAuthorizationCode(contextGin, contextGin.Query("code"))
		if verifyErr != nil {
			deps.Logger.Warn("authorization code verification failed",
				zap.String("code", "auth.callback.verify_failed"),
				zap.Error(verifyErr))
			rejectCallback(contextGin, deps, "auth.callback.verify_failed", "échange du code d'autorisation refusé")
			return
		}

		ident, normalizeErr := identity.Normalize(identity.RawAssertion{Profile: rawProfile})
		if normalizeErr != nil {
			rejectCallback(contextGin, deps, "auth.callback.malformed", "profil Google inutilisable")
			return
		}

		token, user, issueErr := completeAuthentication(contextGin, deps, ident)
		if issueErr != nil {
			deps.Logger.Error("credential issuance failed",
				zap.String("code", "auth.callback.issue_failed"),
				zap.Error(issueErr))
			rejectCallback(contextGin, deps, "auth.callback.issue_failed", "échec de la création de session")
			return
		}

		deps.Metrics.Increment(EventCallbackSuccess)
		contextGin.Header("Content-Type", "text/html; charset=utf-8")
		contextGin.Header("Cache-Control", "no-store")
		contextGin.Status(http.StatusOK)
		if renderErr := handoff.Render(contextGin.Writer, handoff.Message{Token: token, User: user}, deps.FrontendOrigin); renderErr != nil {
			deps.Logger.Error("handoff render failed",
				zap.String("code", "auth.callback.handoff_failed"),
				zap.Error(renderErr))
		}
	})

	router.POST("/auth/onetap", func(contextGin *gin.Context) {
		var inbound struct {
			Credential string `json:"credential"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Credential) == "" {
			deps.Metrics.Increment(EventOneTapRejected)
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "Requête invalide"})
			return
		}

		payload, verifyErr := deps.Verifier.VerifyOneTapToken(contextGin, inbound.Credential)
		if verifyErr != nil {
			deps.Logger.Warn("one tap token rejected",
				zap.String("code", "auth.onetap.verify_failed"),
				zap.Error(verifyErr))
			deps.Metrics.Increment(EventOneTapRejected)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Token invalide"})
			return
		}

		ident, normalizeErr := identity.Normalize(identity.RawAssertion{OneTap: payload})
		if normalizeErr != nil {
			deps.Metrics.Increment(EventOneTapRejected)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Token invalide"})
			return
		}

		token, user, issueErr := completeAuthentication(contextGin, deps, ident)
		if issueErr != nil {
			deps.Logger.Error("credential issuance failed",
				zap.String("code", "auth.onetap.issue_failed"),
				zap.Error(issueErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		deps.Metrics.Increment(EventOneTapSuccess)
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "token": token, "user": user})
	})

	requireBearer := deps.TokenVerifier.GinMiddleware(sessiontoken.DefaultContextKey)

	router.GET("/user", requireBearer, func(contextGin *gin.Context) {
		claims := claimsFromContext(contextGin)
		if claims == nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Non connecté"})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"name":    claims.UserDisplayName,
			"email":   claims.UserEmail,
			"picture": claims.UserPictureURL,
		})
	})

	router.PATCH("/user", requireBearer, func(contextGin *gin.Context) {
		claims := claimsFromContext(contextGin)
		if claims == nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Non connecté"})
			return
		}
		var inbound struct {
			Birthday *string `json:"birthday"`
			Phone    *string `json:"phone"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Requête invalide"})
			return
		}
		record, updateErr := deps.Reconciler.ApplySelfUpdate(contextGin, claims.UserEmail, claims.Subject, profile.SelfUpdate{
			Birthday: inbound.Birthday,
			Phone:    inbound.Phone,
		})
		if updateErr != nil {
			deps.Logger.Error("self-service update failed",
				zap.String("code", "user.self_update.failed"),
				zap.Error(updateErr))
			contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service indisponible"})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"success":  true,
			"birthday": record.Birthday,
			"phone":    record.Phone,
		})
	})
}

// completeAuthentication runs the store sync and mints the credential. A
// profile-store outage is logged and swallowed: being logged in does not
// depend on store health.
func completeAuthentication(contextGin *gin.Context, deps Dependencies, ident identity.Identity) (string, handoff.User, error) {
	if _, _, reconcileErr := deps.Reconciler.Reconcile(contextGin, ident); reconcileErr != nil {
		if !errors.Is(reconcileErr, profile.ErrStoreUnavailable) {
			return "", handoff.User{}, reconcileErr
		}
		deps.Metrics.Increment(EventReconcileDegraded)
		deps.Logger.Warn("profile sync skipped",
			zap.String("code", "auth.reconcile.degraded"),
			zap.Error(reconcileErr))
	}

	subjectID := ident.SubjectID
	if subjectID == "" {
		subjectID = ident.Email
	}
	token, _, issueErr := deps.Issuer.Issue(subjectID, ident.Email, ident.DisplayName, ident.PictureURL)
	if issueErr != nil {
		return "", handoff.User{}, issueErr
	}
	return token, handoff.User{
		ID:      subjectID,
		Name:    ident.DisplayName,
		Email:   ident.Email,
		Picture: ident.PictureURL,
	}, nil
}

func rejectCallback(contextGin *gin.Context, deps Dependencies, code string, reason string) {
	deps.Metrics.Increment(EventCallbackRejected)
	deps.Logger.Warn("callback rejected", zap.String("code", code))
	contextGin.Header("Content-Type", "text/html; charset=utf-8")
	contextGin.Status(http.StatusUnauthorized)
	if renderErr := handoff.RenderFailure(contextGin.Writer, reason); renderErr != nil {
		deps.Logger.Error("failure page render failed",
			zap.String("code", "auth.callback.failure_render"),
			zap.Error(renderErr))
	}
}

func claimsFromContext(contextGin *gin.Context) *sessiontoken.Claims {
	claimsValue, found := contextGin.Get(sessiontoken.DefaultContextKey)
	if !found {
		return nil
	}
	claims, ok := claimsValue.(*sessiontoken.Claims)
	if !ok {
		return nil
	}
	return claims
}
