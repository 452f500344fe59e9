package items

import (
	"fmt"
	"sort"
	"strings"
)

// ItemRow is the relational shape persisted per item.
type ItemRow struct {
	ItemKey                 string   `json:"item_key"`
	NombreItem              string   `json:"nombre_item"`
	Cantidad                *float64 `json:"cantidad"`
	Unidad                  *string  `json:"unidad"`
	Descripcion             string   `json:"descripcion"`
	Observaciones           *string  `json:"observaciones"`
	FuenteResumen           *string  `json:"fuente_resumen"`
	Incompleto              bool     `json:"incompleto"`
	IncompletoMotivos       []string `json:"incompleto_motivos"`
	TieneDescripcionTecnica bool     `json:"tiene_descripcion_tecnica"`
}

// SpecRow is one technical specification tied to an item by key.
type SpecRow struct {
	ItemKey        string `json:"item_key"`
	Especificacion string `json:"especificacion"`
}

func normalizeItems(items []Item, refs []SpecRef) ([]ItemRow, []SpecRow, []string) {
	rows := make([]ItemRow, 0, len(items))
	var specRows []SpecRow
	var warnings []string

	seenSpec := map[string]bool{}
	addSpec := func(key, spec string) {
		spec = strings.TrimSpace(spec)
		if key == "" || spec == "" {
			return
		}
		dedup := key + "\x00" + spec
		if seenSpec[dedup] {
			return
		}
		seenSpec[dedup] = true
		specRows = append(specRows, SpecRow{ItemKey: key, Especificacion: spec})
	}

	for _, item := range items {
		key := strings.TrimSpace(item.ItemKey)
		if key == "" {
			key = normalizeKey(item.NombreItem)
		}

		var motivos []string
		if strings.TrimSpace(item.NombreItem) == "" {
			motivos = append(motivos, "nombre ausente")
		}
		if item.Unidad == nil || strings.TrimSpace(*item.Unidad) == "" {
			motivos = append(motivos, "unidad ausente")
		}
		if item.Cantidad == nil || *item.Cantidad == 0 {
			motivos = append(motivos, "cantidad vacía")
		}

		descripcion := ""
		if item.Descripcion != nil {
			descripcion = strings.TrimSpace(*item.Descripcion)
		}

		if len(items) > 1 && countEmbeddedMarkers(item) >= 2 {
			warnings = append(warnings,
				fmt.Sprintf("ítem %q parece contener numeración interna de varios ítems", item.NombreItem))
		}

		rows = append(rows, ItemRow{
			ItemKey:                 key,
			NombreItem:              strings.TrimSpace(item.NombreItem),
			Cantidad:                item.Cantidad,
			Unidad:                  trimToNil(item.Unidad),
			Descripcion:             descripcion,
			Observaciones:           trimToNil(item.Notas),
			FuenteResumen:           buildFuenteResumen(item.Fuentes),
			Incompleto:              len(motivos) > 0,
			IncompletoMotivos:       motivos,
			TieneDescripcionTecnica: descripcion != "" && len(item.Especificaciones) > 0,
		})

		for _, spec := range item.Especificaciones {
			addSpec(key, spec)
		}
	}

	for _, ref := range refs {
		addSpec(strings.TrimSpace(ref.ItemKey), ref.Especificacion)
	}

	return rows, specRows, warnings
}

// normalizeKey derives a stable key from a free-form item name: ASCII
// folded, lowercased, spaces replaced with underscores.
func normalizeKey(name string) string {
	folded := strings.Map(foldRune, strings.ToLower(strings.TrimSpace(name)))
	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}

func foldRune(r rune) rune {
	switch r {
	case 'á', 'à', 'ä', 'â':
		return 'a'
	case 'é', 'è', 'ë', 'ê':
		return 'e'
	case 'í', 'ì', 'ï', 'î':
		return 'i'
	case 'ó', 'ò', 'ö', 'ô':
		return 'o'
	case 'ú', 'ù', 'ü', 'û':
		return 'u'
	case 'ñ':
		return 'n'
	}
	return r
}

// buildFuenteResumen renders a sorted, deduplicated page summary such as
// "p.12; p.15".
func buildFuenteResumen(fuentes []Fuente) *string {
	seen := map[int]bool{}
	var pages []int
	for _, f := range fuentes {
		if f.Pagina.Valid && !seen[f.Pagina.Value] {
			seen[f.Pagina.Value] = true
			pages = append(pages, f.Pagina.Value)
		}
	}
	if len(pages) == 0 {
		return nil
	}
	sort.Ints(pages)
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("p.%d", p)
	}
	out := strings.Join(parts, "; ")
	return &out
}

func trimToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
