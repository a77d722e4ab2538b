package sdata

// GetTestModelInfo returns the fixture model used across the compiler and
// renderer tests: a four level hierarchy with optional and required
// navigations plus a many-to-many schema with composite keys.
func GetTestModelInfo() *ModelInfo {
	return &ModelInfo{
		Entities: []EntityInfo{
			{
				Name: "LevelOne",
				Columns: []ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "Date", Type: "datetime2"},
					{Name: "Name", Type: "nvarchar", Nullable: true},
					{Name: "OneToMany_Optional_Self_Inverse1Id", Type: "int", Nullable: true},
					{Name: "OneToOne_Optional_Self1Id", Type: "int", Nullable: true},
				},
				ForeignKeys: []ForeignKeyInfo{
					{
						Columns:    []string{"OneToMany_Optional_Self_Inverse1Id"},
						References: "LevelOne",
						Navigation: "OneToMany_Optional_Self_Inverse1",
						Inverse:    "OneToMany_Optional_Self1",
					},
					{
						Columns:    []string{"OneToOne_Optional_Self1Id"},
						References: "LevelOne",
						Navigation: "OneToOne_Optional_Self1",
						Inverse:    "-",
						Unique:     true,
					},
				},
			},
			{
				Name: "LevelTwo",
				Columns: []ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "Date", Type: "datetime2"},
					{Name: "Level1_Optional_Id", Type: "int", Nullable: true},
					{Name: "Level1_Required_Id", Type: "int"},
					{Name: "Name", Type: "nvarchar", Nullable: true},
					{Name: "OneToMany_Optional_Inverse2Id", Type: "int", Nullable: true},
					{Name: "OneToMany_Optional_Self_Inverse2Id", Type: "int", Nullable: true},
					{Name: "OneToMany_Required_Inverse2Id", Type: "int"},
				},
				ForeignKeys: []ForeignKeyInfo{
					levelFK("Level1_Optional_Id", "LevelOne", "OneToOne_Optional_FK_Inverse2", "OneToOne_Optional_FK1", true),
					levelFK("Level1_Required_Id", "LevelOne", "OneToOne_Required_FK_Inverse2", "OneToOne_Required_FK1", true),
					levelFK("OneToMany_Optional_Inverse2Id", "LevelOne", "OneToMany_Optional_Inverse2", "OneToMany_Optional1", false),
					levelFK("OneToMany_Required_Inverse2Id", "LevelOne", "OneToMany_Required_Inverse2", "OneToMany_Required1", false),
					levelFK("OneToMany_Optional_Self_Inverse2Id", "LevelTwo", "OneToMany_Optional_Self_Inverse2", "OneToMany_Optional_Self2", false),
				},
			},
			{
				Name: "LevelThree",
				Columns: []ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "Level2_Optional_Id", Type: "int", Nullable: true},
					{Name: "Level2_Required_Id", Type: "int"},
					{Name: "Name", Type: "nvarchar", Nullable: true},
					{Name: "OneToMany_Optional_Inverse3Id", Type: "int", Nullable: true},
					{Name: "OneToMany_Required_Inverse3Id", Type: "int"},
				},
				ForeignKeys: []ForeignKeyInfo{
					levelFK("Level2_Optional_Id", "LevelTwo", "OneToOne_Optional_FK_Inverse3", "OneToOne_Optional_FK2", true),
					levelFK("Level2_Required_Id", "LevelTwo", "OneToOne_Required_FK_Inverse3", "OneToOne_Required_FK2", true),
					levelFK("OneToMany_Optional_Inverse3Id", "LevelTwo", "OneToMany_Optional_Inverse3", "OneToMany_Optional2", false),
					levelFK("OneToMany_Required_Inverse3Id", "LevelTwo", "OneToMany_Required_Inverse3", "OneToMany_Required2", false),
				},
			},
			{
				Name: "LevelFour",
				Columns: []ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "Level3_Optional_Id", Type: "int", Nullable: true},
					{Name: "Level3_Required_Id", Type: "int"},
					{Name: "Name", Type: "nvarchar", Nullable: true},
					{Name: "OneToMany_Optional_Inverse4Id", Type: "int", Nullable: true},
					{Name: "OneToMany_Required_Inverse4Id", Type: "int"},
				},
				ForeignKeys: []ForeignKeyInfo{
					levelFK("Level3_Optional_Id", "LevelThree", "OneToOne_Optional_FK_Inverse4", "OneToOne_Optional_FK3", true),
					levelFK("Level3_Required_Id", "LevelThree", "OneToOne_Required_FK_Inverse4", "OneToOne_Required_FK3", true),
					levelFK("OneToMany_Optional_Inverse4Id", "LevelThree", "OneToMany_Optional_Inverse4", "OneToMany_Optional3", false),
					levelFK("OneToMany_Required_Inverse4Id", "LevelThree", "OneToMany_Required_Inverse4", "OneToMany_Required3", false),
				},
			},
			{
				Name:  "EntityOne",
				Table: "EntityOnes",
				Columns: []ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "Name", Type: "nvarchar", Nullable: true},
				},
				SkipNavigations: []SkipInfo{
					{Name: "TwoSkip", Target: "EntityTwo", Through: "JoinOneToTwo", Inverse: "OneSkip"},
				},
			},
			{
				Name:  "EntityTwo",
				Table: "EntityTwos",
				Columns: []ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "CollectionInverseId", Type: "int", Nullable: true},
					{Name: "Name", Type: "nvarchar", Nullable: true},
					{Name: "ReferenceInverseId", Type: "int", Nullable: true},
				},
				ForeignKeys: []ForeignKeyInfo{
					levelFK("CollectionInverseId", "EntityOne", "CollectionInverse", "Collection", false),
					levelFK("ReferenceInverseId", "EntityOne", "ReferenceInverse", "Reference", true),
				},
				SkipNavigations: []SkipInfo{
					{Name: "ThreeSkipFull", Target: "EntityThree", Through: "JoinTwoToThree", Inverse: "TwoSkipFull"},
				},
			},
			{
				Name:  "EntityThree",
				Table: "EntityThrees",
				Columns: []ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "CollectionInverseId", Type: "int", Nullable: true},
					{Name: "Name", Type: "nvarchar", Nullable: true},
					{Name: "ReferenceInverseId", Type: "int", Nullable: true},
				},
				ForeignKeys: []ForeignKeyInfo{
					levelFK("CollectionInverseId", "EntityTwo", "CollectionInverse", "Collection", false),
					levelFK("ReferenceInverseId", "EntityTwo", "ReferenceInverse", "Reference", true),
				},
				SkipNavigations: []SkipInfo{
					{Name: "RootSkipShared", Target: "EntityRoot", Through: "JoinThreeToRoot", Inverse: "ThreeSkipShared"},
				},
			},
			{
				Name:  "EntityCompositeKey",
				Table: "EntityCompositeKeys",
				Columns: []ColumnInfo{
					{Name: "Key1", Type: "int", Key: true},
					{Name: "Key2", Type: "nvarchar", Key: true},
					{Name: "Key3", Type: "datetime2", Key: true},
					{Name: "Name", Type: "nvarchar", Nullable: true},
				},
				SkipNavigations: []SkipInfo{
					{
						Name: "RootSkipShared", Target: "EntityRoot", Through: "JoinCompositeKeyToRoot", Inverse: "CompositeKeySkipShared",
					},
				},
			},
			{
				Name:  "EntityRoot",
				Table: "EntityRoots",
				Columns: []ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "Name", Type: "nvarchar", Nullable: true},
				},
			},
			{
				Name:  "EntityBranch",
				Table: "EntityBranches",
				Columns: []ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "CompositeId1", Type: "int", Nullable: true},
					{Name: "CompositeId2", Type: "nvarchar", Nullable: true},
					{Name: "CompositeId3", Type: "datetime2", Nullable: true},
					{Name: "Name", Type: "nvarchar", Nullable: true},
				},
				ForeignKeys: []ForeignKeyInfo{
					{
						Columns:    []string{"CompositeId1", "CompositeId2", "CompositeId3"},
						References: "EntityCompositeKey",
						Navigation: "Composite",
						Inverse:    "Branches",
					},
				},
			},
			{
				Name: "JoinOneToTwo",
				Columns: []ColumnInfo{
					{Name: "OneId", Type: "int", Key: true},
					{Name: "TwoId", Type: "int", Key: true},
				},
				ForeignKeys: []ForeignKeyInfo{
					joinFK("EntityOne", "OneId"),
					joinFK("EntityTwo", "TwoId"),
				},
			},
			{
				Name: "JoinTwoToThree",
				Columns: []ColumnInfo{
					{Name: "ThreeId", Type: "int", Key: true},
					{Name: "TwoId", Type: "int", Key: true},
				},
				ForeignKeys: []ForeignKeyInfo{
					joinFK("EntityThree", "ThreeId"),
					joinFK("EntityTwo", "TwoId"),
				},
			},
			{
				Name: "JoinCompositeKeyToRoot",
				Columns: []ColumnInfo{
					{Name: "CompositeId1", Type: "int", Key: true},
					{Name: "CompositeId2", Type: "nvarchar", Key: true},
					{Name: "CompositeId3", Type: "datetime2", Key: true},
					{Name: "RootId", Type: "int", Key: true},
				},
				ForeignKeys: []ForeignKeyInfo{
					joinFK("EntityCompositeKey", "CompositeId1", "CompositeId2", "CompositeId3"),
					joinFK("EntityRoot", "RootId"),
				},
			},
			{
				Name: "JoinThreeToRoot",
				Columns: []ColumnInfo{
					{Name: "RootId", Type: "int", Key: true},
					{Name: "ThreeId", Type: "int", Key: true},
				},
				ForeignKeys: []ForeignKeyInfo{
					joinFK("EntityRoot", "RootId"),
					joinFK("EntityThree", "ThreeId"),
				},
			},
		},
	}
}

func GetTestModel() (*Model, error) {
	return NewModel(GetTestModelInfo())
}

func levelFK(col, ref, nav, inverse string, unique bool) ForeignKeyInfo {
	return ForeignKeyInfo{
		Columns:    []string{col},
		References: ref,
		Navigation: nav,
		Inverse:    inverse,
		Unique:     unique,
	}
}

func joinFK(ref string, cols ...string) ForeignKeyInfo {
	return ForeignKeyInfo{
		Columns:    cols,
		References: ref,
		Navigation: noNavigation,
		Inverse:    noNavigation,
	}
}
