package engine

import (
	"context"

	"github.com/canopy-host/canopy/internal/core/domain"
)

// =============================================================================
// Template Seeding
// =============================================================================

type seedTemplate struct {
	name       string
	definition string
	defaults   map[string]string
}

var seedTemplates = []seedTemplate{
	{
		name: "Static Site",
		definition: `services:
  web:
    image: nginx:alpine
    ports:
      - "${HOST_PORT}:80"
    volumes:
      - ${STACK_PATH}/public:/usr/share/nginx/html:ro
    restart: unless-stopped
`,
		defaults: map[string]string{"HOST_PORT": "8080"},
	},
	{
		name: "WordPress",
		definition: `services:
  wordpress:
    image: wordpress:latest
    ports:
      - "${HOST_PORT}:80"
    environment:
      WORDPRESS_DB_HOST: db
      WORDPRESS_DB_USER: ${DB_USER}
      WORDPRESS_DB_PASSWORD: ${DB_PASSWORD}
      WORDPRESS_DB_NAME: ${DB_NAME}
    volumes:
      - ${STACK_PATH}/wp-content:/var/www/html/wp-content
    depends_on:
      - db
    restart: unless-stopped
  db:
    image: mariadb:11
    environment:
      MARIADB_DATABASE: ${DB_NAME}
      MARIADB_USER: ${DB_USER}
      MARIADB_PASSWORD: ${DB_PASSWORD}
      MARIADB_RANDOM_ROOT_PASSWORD: "1"
    volumes:
      - ${STACK_PATH}/db:/var/lib/mysql
    restart: unless-stopped
`,
		defaults: map[string]string{
			"HOST_PORT":   "8080",
			"DB_NAME":     "wordpress",
			"DB_USER":     "wordpress",
			"DB_PASSWORD": "wordpress",
		},
	},
}

// EnsureDefaultTemplates seeds the starter templates when the table is
// empty. An operator-curated catalog takes precedence: a non-empty table is
// never touched.
func (e *Engine) EnsureDefaultTemplates(ctx context.Context) error {
	count, err := e.store.CountTemplates(ctx)
	if err != nil {
		return mapStoreErr(err)
	}
	if count > 0 {
		return nil
	}

	for _, seed := range seedTemplates {
		tpl, err := domain.NewTemplate(seed.name, domain.KindCompose, seed.definition)
		if err != nil {
			return err
		}
		tpl.Defaults = seed.defaults
		tpl.Allowed = true
		if err := e.store.CreateTemplate(ctx, tpl); err != nil {
			return mapStoreErr(err)
		}
		e.logger.Info("seeded template", "slug", tpl.Slug)
	}
	return nil
}
