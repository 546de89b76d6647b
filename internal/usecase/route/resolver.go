package route

import (
	"sort"
	"strings"

	"tg-lead-bot/internal/domain"
)

// Resolver сопоставляет получателя лида с вкладкой леджера по статичной
// карте. Неизвестный получатель уходит во вкладку по умолчанию.
type Resolver struct {
	tabs          map[string]string
	defaultBucket string
}

var _ domain.BucketResolver = (*Resolver)(nil)

// NewResolver создаёт резолвер. Ключи карты приводятся к нижнему регистру
// один раз при старте, поиск регистронезависимый.
func NewResolver(tabs map[string]string, defaultBucket string) *Resolver {
	folded := make(map[string]string, len(tabs))
	for handle, bucket := range tabs {
		folded[strings.ToLower(handle)] = bucket
	}
	return &Resolver{tabs: folded, defaultBucket: defaultBucket}
}

// Resolve возвращает вкладку для получателя.
func (r *Resolver) Resolve(handle string) string {
	if bucket, ok := r.tabs[strings.ToLower(handle)]; ok {
		return bucket
	}
	return r.defaultBucket
}

// Buckets перечисляет все настроенные вкладки, включая вкладку по
// умолчанию, в отсортированном порядке без дублей.
func (r *Resolver) Buckets() []string {
	seen := map[string]struct{}{r.defaultBucket: {}}
	for _, bucket := range r.tabs {
		seen[bucket] = struct{}{}
	}
	buckets := make([]string, 0, len(seen))
	for bucket := range seen {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)
	return buckets
}

// Recipients возвращает карту «вкладка — получатели» для отчётов.
func (r *Resolver) Recipients() map[string][]string {
	out := make(map[string][]string)
	for handle, bucket := range r.tabs {
		out[bucket] = append(out[bucket], handle)
	}
	for bucket := range out {
		sort.Strings(out[bucket])
	}
	return out
}
