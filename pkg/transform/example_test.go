package transform_test

import (
	"fmt"

	"github.com/menta2k/mlserver/pkg/transform"
)

func ExampleCropBox() {
	box, err := transform.CropBox(100, 100, transform.CropSpec{
		XPercent: 50,
		YPercent: 50,
		ScaleW:   0.4,
		ScaleH:   0.4,
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(box)
	// Output: (30,30)-(70,70)
}

func ExampleAspectCropBox() {
	box, crop := transform.AspectCropBox(400, 300, 200, 200)
	fmt.Println(box, crop)
	// Output: (50,0)-(350,300) true
}
