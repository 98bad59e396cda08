package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator_Slice(t *testing.T) {
	loc := NewLocator()

	t.Run("prefers occurrence near an action marker over the TOC entry", func(t *testing.T) {
		doc := strings.Join([]string{
			"Indice",
			"2.4 Acciones detalladas del proceso TO-BE ........ 12",
			"2.5 Matriz de criterios de aceptacion ........ 30",
			strings.Repeat("relleno\n", 20),
			"2.4 Acciones detalladas del proceso TO-BE",
			"1. Nombre de la accion: Carga de archivo",
			"El bot carga el archivo al repositorio.",
			"2.5 Matriz de criterios de aceptacion",
			"criterio 1",
		}, "\n")

		got := loc.Slice(doc)
		require.NotEmpty(t, got)
		assert.Contains(t, got, "1. Nombre de la accion: Carga de archivo")
		assert.NotContains(t, got, "........")
		assert.NotContains(t, got, "criterio 1")
	})

	t.Run("section runs to end of document when no end heading", func(t *testing.T) {
		doc := "2.4 Acciones detalladas del proceso TO-BE\n1. Nombre de la accion: Subir\npaso final"
		got := loc.Slice(doc)
		assert.True(t, strings.HasSuffix(got, "paso final"))
	})

	t.Run("falls back to un-numbered heading", func(t *testing.T) {
		doc := "Acciones detalladas del proceso TO-BE\n1. Nombre de la accion: Validar\ncuerpo"
		got := loc.Slice(doc)
		assert.Contains(t, got, "Nombre de la accion: Validar")
	})

	t.Run("tolerates table cell separator and missing space", func(t *testing.T) {
		doc := "2.4 | Acciones detalladas del proceso TO-BE2.4\n3. Nombre de la accion: Enviar correo\ncuerpo"
		got := loc.Slice(doc)
		assert.Contains(t, got, "Nombre de la accion: Enviar correo")
	})

	t.Run("last candidate wins when no marker anywhere", func(t *testing.T) {
		doc := strings.Join([]string{
			"2.4 Acciones detalladas del proceso TO-BE",
			"primera aparicion",
			"2.4 Acciones detalladas del proceso TO-BE",
			"segunda aparicion",
		}, "\n")
		got := loc.Slice(doc)
		assert.Equal(t, "segunda aparicion", got)
	})

	t.Run("empty when heading never appears", func(t *testing.T) {
		assert.Empty(t, loc.Slice("documento sin la seccion esperada"))
		assert.Empty(t, loc.Slice(""))
	})
}
