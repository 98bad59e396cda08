package contextpack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Categories(t *testing.T) {
	b := NewBuilder()

	text := strings.Join([]string{
		"Sistema: SAP ECC",
		"Sistema: Portal de proveedores",
		"Input: archivo de nómina",
		"Output: reporte consolidado",
		`El bot guarda el resultado en la carpeta "Procesados_2024".`,
		"Nota: Los montos se expresan en UF.",
		"Algún paso intermedio.",
		"Nota: Los montos se expresan en UF.",
		"Nota: Esta aclaración aparece solo una vez.",
		"Los valores son obtenidos en la actividad 3 del flujo.",
		"El archivo se deja en SharePoint con formato DD/MM/YYYY.",
	}, "\n")

	pack := b.Build(text)
	require.True(t, strings.HasPrefix(pack, packHeader))

	assert.Contains(t, pack, "- Systems: Portal de proveedores, SAP ECC")
	assert.Contains(t, pack, "- Inputs mentioned: archivo de nómina")
	assert.Contains(t, pack, "- Outputs mentioned: reporte consolidado")
	assert.Contains(t, pack, "Procesados_2024")

	// Only notes seen at least twice survive, once each.
	assert.Equal(t, 1, strings.Count(pack, "Los montos se expresan en UF."))
	assert.NotContains(t, pack, "solo una vez")

	assert.Contains(t, pack, "- Cross-activity references (dependencies):")
	assert.Contains(t, pack, "obtenidos en la actividad 3")

	assert.Contains(t, pack, "- Format/tooling hints")
	assert.Contains(t, pack, "SharePoint")
	assert.NotContains(t, pack, truncatedMarker)
}

func TestBuild_EmptyCategoriesOmitted(t *testing.T) {
	b := NewBuilder()

	pack := b.Build("Texto plano sin declaraciones ni notas.")
	assert.Equal(t, packHeader, pack)
	assert.NotContains(t, pack, "- Systems:")
	assert.NotContains(t, pack, "Repeated notes")
}

func TestBuild_ListCaps(t *testing.T) {
	b := NewBuilder()

	var lines []string
	for i := 0; i < maxItemsPerList+5; i++ {
		lines = append(lines, "Input: insumo número "+strings.Repeat("x", i+1))
	}
	pack := b.Build(strings.Join(lines, "\n"))

	require.Contains(t, pack, "- Inputs mentioned: ")
	inputLine := ""
	for _, ln := range strings.Split(pack, "\n") {
		if strings.HasPrefix(ln, "- Inputs mentioned: ") {
			inputLine = ln
		}
	}
	require.NotEmpty(t, inputLine)
	assert.Equal(t, maxItemsPerList, strings.Count(inputLine, "insumo número"))
	assert.True(t, strings.HasSuffix(inputLine, " ..."))
}

func TestBuild_CharBudgetTruncates(t *testing.T) {
	b := NewBuilder()

	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, "Sistema: "+string(rune('A'+i))+strings.Repeat("z", 250))
	}
	pack := b.Build(strings.Join(lines, "\n"))

	assert.True(t, strings.HasSuffix(pack, truncatedMarker))
	assert.LessOrEqual(t, len(pack), maxChars+len(truncatedMarker)+1)
}

func TestSplitLongLine(t *testing.T) {
	b := NewBuilder()

	t.Run("short line passes through", func(t *testing.T) {
		assert.Equal(t, []string{"hola mundo"}, b.splitLongLine(" hola mundo "))
	})

	t.Run("sentence boundary split", func(t *testing.T) {
		first := "Primera oración con bastante texto " + strings.Repeat("a", 120) + "."
		second := "Segunda oración también larga " + strings.Repeat("b", 120) + "."
		pieces := b.splitLongLine(first + " " + second)
		require.Len(t, pieces, 2)
		assert.True(t, strings.HasPrefix(pieces[0], "Primera"))
		assert.True(t, strings.HasPrefix(pieces[1], "Segunda"))
	})

	t.Run("unbroken run gets hard cut", func(t *testing.T) {
		pieces := b.splitLongLine(strings.Repeat("a", longLineSplit*2+7))
		require.Len(t, pieces, 3)
		for _, p := range pieces[:2] {
			assert.Len(t, p, longLineSplit)
		}
	})

	t.Run("empty yields nothing", func(t *testing.T) {
		assert.Empty(t, b.splitLongLine("   "))
	})
}
