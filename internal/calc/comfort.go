package calc

import "ble-bridge/models"

var (
	comfortTemperatures = []float64{10, 15, 20, 25, 30, 35}
	comfortHumidities   = []float64{0, 20, 40, 60, 80, 100}

	// comfortTable[i][j] is the comfort score at comfortTemperatures[i] and
	// comfortHumidities[j].
	comfortTable = [][]float64{
		{20, 30, 35, 35, 30, 20},
		{35, 50, 60, 60, 50, 35},
		{50, 75, 95, 95, 75, 50},
		{50, 75, 95, 90, 65, 40},
		{35, 55, 65, 55, 40, 25},
		{15, 30, 35, 25, 15, 5},
	}
)

// ComfortIndex interpolates the comfort table bilinearly. Inputs outside
// the table are clamped to its edges.
func ComfortIndex(t *models.Celsius, rh *models.RelativeHumidity) *models.Index {
	if t == nil || rh == nil {
		return nil
	}
	i, ti := locate(comfortTemperatures, float64(*t))
	j, hj := locate(comfortHumidities, float64(*rh))

	top := lerp(comfortTable[i][j], comfortTable[i][j+1], hj)
	bottom := lerp(comfortTable[i+1][j], comfortTable[i+1][j+1], hj)
	return models.Ptr(models.Index(lerp(top, bottom, ti)))
}

// locate returns the lower cell index for v on axis and the fractional
// position inside that cell.
func locate(axis []float64, v float64) (int, float64) {
	last := len(axis) - 1
	v = clamp(v, axis[0], axis[last])
	for k := 0; k < last-1; k++ {
		if v < axis[k+1] {
			return k, (v - axis[k]) / (axis[k+1] - axis[k])
		}
	}
	return last - 1, (v - axis[last-1]) / (axis[last] - axis[last-1])
}

func lerp(a, b, f float64) float64 { return a + (b-a)*f }
