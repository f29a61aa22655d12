package sensormsgs

import "testing"

func TestFamilyOf(t *testing.T) {
	testCases := []struct {
		Name       string
		MsgType    string
		Family     Family
		Compressed bool
	}{
		{Name: "Point Cloud", MsgType: TypePointCloud2, Family: FamilyPointCloud},
		{Name: "Bare Point Cloud", MsgType: "PointCloud2", Family: FamilyPointCloud},
		{Name: "Raw Image", MsgType: TypeImage, Family: FamilyImage},
		{Name: "Compressed Image", MsgType: TypeCompressedImage, Family: FamilyImage, Compressed: true},
		{Name: "Legacy Point Cloud", MsgType: "sensor_msgs/PointCloud", Family: FamilyUnsupported},
		{Name: "Laser Scan", MsgType: "sensor_msgs/LaserScan", Family: FamilyUnsupported},
		{Name: "Empty", MsgType: "", Family: FamilyUnsupported},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			if family := FamilyOf(testCase.MsgType); family != testCase.Family {
				t.Fatalf("expected %s, got %s", testCase.Family, family)
			}
			if compressed := IsCompressed(testCase.MsgType); compressed != testCase.Compressed {
				t.Fatalf("expected compressed to be %t", testCase.Compressed)
			}
		})
	}
}

func TestDefinitionOf(t *testing.T) {
	for _, msgType := range []string{TypeImage, TypeCompressedImage, TypePointCloud2} {
		def, ok := DefinitionOf(msgType)
		if !ok {
			t.Fatalf("missing definition for %s", msgType)
		}
		if def.Type != msgType || len(def.MD5Sum) != 32 {
			t.Fatalf("invalid definition for %s: %+v", msgType, def)
		}
	}

	if _, ok := DefinitionOf("sensor_msgs/LaserScan"); ok {
		t.Fatal("expected no definition")
	}
}
