package normalize

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
	"github.com/JakeFAU/metal-price-harvester/internal/metrics"
)

// Source columns read by the engine.
const (
	ColumnSize     = "Размер"
	ColumnAuxSize  = "Доп. размер"
	ColumnMaterial = "Сталь"
	ColumnStandard = "ГОСТ"
)

// Derived columns, in output order.
const (
	ColumnProductType    = "Тип_продукции"
	ColumnGrade          = "Марка"
	ColumnStandardSize   = "Типоразмер"
	ColumnSizeA          = "Размер_A"
	ColumnSizeB          = "Размер_B"
	ColumnSizeC          = "Размер_C"
	ColumnThickness      = "Толщина"
	ColumnRangeMin       = "Диапазон_min"
	ColumnRangeMax       = "Диапазон_max"
	ColumnSizeNote       = "Примечание_для_размера"
	ColumnMinLength      = "Минимальная_длина"
	ColumnMaxLength      = "Максимальная_длина"
	ColumnPackaging      = "Упаковка"
	ColumnPriceNote      = "Примечание_для_цены"
	ColumnMaterialType   = "Тип_материала"
	ColumnPrimaryGrade   = "Основная_марка"
	ColumnWeldable       = "Свариваемость"
	ColumnStandardType   = "Тип_стандарта"
	ColumnStandardNumber = "Номер_стандарта"
	ColumnStandardYear   = "Год_стандарта"
	ColumnPrice          = "Цена"
	ColumnPriceCategory  = "Категория_цены"
	ColumnPriceCondition = "Условие_цены"
	ColumnCallForPrice   = "Звоните"
)

// DerivedColumns lists the columns the engine appends.
var DerivedColumns = []string{
	ColumnProductType, ColumnGrade, ColumnStandardSize,
	ColumnSizeA, ColumnSizeB, ColumnSizeC,
	ColumnThickness, ColumnRangeMin, ColumnRangeMax, ColumnSizeNote,
	ColumnMinLength, ColumnMaxLength, ColumnPackaging, ColumnPriceNote,
	ColumnMaterialType, ColumnPrimaryGrade, ColumnWeldable,
	ColumnStandardType, ColumnStandardNumber, ColumnStandardYear,
	ColumnPrice, ColumnPriceCategory, ColumnPriceCondition, ColumnCallForPrice,
}

// Engine applies every classifier to a unified table.
type Engine struct {
	logger *zap.Logger
}

// NewEngine returns an Engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Apply returns a new table with raw cells trimmed, the classifiers' fields
// appended and the consumed columns (aux size, material, per-category prices)
// removed. The input table is not modified.
func (e *Engine) Apply(table dataset.Table) dataset.Table {
	priceCols := PriceColumns(table.Columns)
	consumed := map[string]struct{}{ColumnAuxSize: {}, ColumnMaterial: {}}
	for _, c := range priceCols {
		consumed[c] = struct{}{}
	}

	cols := dataset.NewColumnSet()
	for _, c := range table.Columns {
		if _, ok := consumed[c]; !ok {
			cols.Add(c)
		}
	}
	for _, c := range DerivedColumns {
		cols.Add(c)
	}

	out := dataset.Table{Columns: cols.Names(), Records: make([]dataset.Record, 0, len(table.Records))}
	unrecognized := 0
	for _, src := range table.Records {
		rec := trimmed(src)
		dst := dataset.NewRecord(cols)
		for _, c := range table.Columns {
			if _, ok := consumed[c]; !ok && cols.Has(c) {
				dst[c] = rec[c]
			}
		}

		size, _ := rec.Get(ColumnSize)
		dim := ClassifyDimension(size)
		if dim.Type == DimensionUnrecognized {
			unrecognized++
		}
		metrics.ObserveClassification("dimension", dim.Type)
		setDimension(dst, dim)

		aux, _ := rec.Get(ColumnAuxSize)
		setAuxSize(dst, ClassifyAuxSize(aux))

		grade, _ := rec.Get(ColumnMaterial)
		mat := ClassifyMaterial(grade)
		metrics.ObserveClassification("material", mat.Family)
		setMaterial(dst, mat)

		code, _ := rec.Get(ColumnStandard)
		setStandard(dst, ClassifyStandard(code))

		setPrice(dst, UnifyPrice(table.Columns, rec))
		out.Records = append(out.Records, dst)
	}

	e.logger.Info("normalization finished",
		zap.Int("rows", len(out.Records)),
		zap.Int("price_columns", len(priceCols)),
		zap.Int("unrecognized_sizes", unrecognized),
	)
	return out
}

func trimmed(src dataset.Record) dataset.Record {
	rec := make(dataset.Record, len(src))
	for k, v := range src {
		if v == nil {
			rec[k] = nil
			continue
		}
		rec.Set(k, strings.TrimSpace(*v))
	}
	return rec
}

func setDimension(rec dataset.Record, d Dimension) {
	rec.Set(ColumnProductType, d.Type)
	rec[ColumnGrade] = d.Grade
	rec[ColumnStandardSize] = formatInt(d.StandardSize)
	rec[ColumnSizeA] = formatFloat(d.SizeA)
	rec[ColumnSizeB] = formatFloat(d.SizeB)
	rec[ColumnSizeC] = formatFloat(d.SizeC)
	rec[ColumnThickness] = formatFloat(d.Thickness)
	rec[ColumnRangeMin] = formatFloat(d.RangeMin)
	rec[ColumnRangeMax] = formatFloat(d.RangeMax)
	rec[ColumnSizeNote] = d.Note
}

func setAuxSize(rec dataset.Record, a AuxSize) {
	rec[ColumnMinLength] = formatFloat(a.MinLength)
	rec[ColumnMaxLength] = formatFloat(a.MaxLength)
	rec[ColumnPackaging] = a.Packaging
	rec[ColumnPriceNote] = a.PriceNote
}

func setMaterial(rec dataset.Record, m Material) {
	rec.Set(ColumnMaterialType, m.Family)
	rec.Set(ColumnPrimaryGrade, m.PrimaryGrade)
	weldable := "0"
	if m.Weldable {
		weldable = "1"
	}
	rec.Set(ColumnWeldable, weldable)
}

func setStandard(rec dataset.Record, s Standard) {
	rec.Set(ColumnStandardType, s.Type)
	rec[ColumnStandardNumber] = s.Number
	rec.Set(ColumnStandardYear, strconv.Itoa(s.Year))
}

func setPrice(rec dataset.Record, p Price) {
	rec[ColumnPrice] = formatFloat(p.Value)
	rec[ColumnPriceCategory] = p.Category
	rec[ColumnPriceCondition] = p.Condition
	rec.Set(ColumnCallForPrice, strconv.FormatBool(p.CallForPrice))
}

func formatFloat(v *float64) *string {
	if v == nil {
		return nil
	}
	return ptr(strconv.FormatFloat(*v, 'f', -1, 64))
}

func formatInt(v *int) *string {
	if v == nil {
		return nil
	}
	return ptr(strconv.Itoa(*v))
}
