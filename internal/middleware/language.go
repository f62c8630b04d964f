package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/planify/internal/model"
)

var languageContextKey = contextKey("language")

// NewLanguageMiddleware はリクエストの表示言語を決定してコンテキストに注入する。
// lang クエリパラメータ、Accept-Language ヘッダー、fallback の順で選ぶ。
func NewLanguageMiddleware(fallback model.Language) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := fallback
			if q := r.URL.Query().Get("lang"); q != "" {
				lang = model.ParseLanguage(q, fallback)
			} else if h := r.Header.Get("Accept-Language"); h != "" {
				lang = model.ParseLanguage(h, fallback)
			}
			w.Header().Set("Content-Language", string(lang))
			next.ServeHTTP(w, r.WithContext(ContextWithLanguage(r.Context(), lang)))
		})
	}
}

// LanguageFromContext はコンテキストの表示言語を返す。未設定の場合は uz。
func LanguageFromContext(ctx context.Context) model.Language {
	if lang, ok := ctx.Value(languageContextKey).(model.Language); ok {
		return lang
	}
	return model.LanguageUz
}

// ContextWithLanguage はコンテキストに表示言語を注入する。
func ContextWithLanguage(ctx context.Context, lang model.Language) context.Context {
	return context.WithValue(ctx, languageContextKey, lang)
}
